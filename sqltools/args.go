package sqltools

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/inspirepan/copilot"
)

// Tool names.
const (
	ToolListTables    = "sql_list_tables"
	ToolDescribeTable = "sql_describe_table"
	ToolRowCount      = "sql_get_table_row_count"
	ToolSampleData    = "sql_get_sample_data"
	ToolExecuteQuery  = "sql_execute_query"
)

const (
	DefaultSampleLimit = 10
	MaxSampleLimit     = 100
)

// Call is a validated tool invocation. Exactly one concrete type exists per
// tool name.
type Call interface {
	ToolName() string
}

type ListTables struct{}

type DescribeTable struct {
	TableName string
}

type RowCount struct {
	TableName string
}

type SampleData struct {
	TableName string
	// Limit is already clamped to [1, MaxSampleLimit].
	Limit int
}

type ExecuteQuery struct {
	Query string
}

func (ListTables) ToolName() string    { return ToolListTables }
func (DescribeTable) ToolName() string { return ToolDescribeTable }
func (RowCount) ToolName() string      { return ToolRowCount }
func (SampleData) ToolName() string    { return ToolSampleData }
func (ExecuteQuery) ToolName() string  { return ToolExecuteQuery }

type rawArgs struct {
	TableName *string  `json:"tableName"`
	Limit     *float64 `json:"limit"`
	Query     *string  `json:"query"`
}

// ParseCall validates raw JSON arguments for the named tool. It never
// touches a datasource.
func ParseCall(name string, raw json.RawMessage) (Call, error) {
	var args rawArgs
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return nil, &copilot.ArgumentError{Tool: name, Reason: err.Error()}
		}
	}

	switch name {
	case ToolListTables:
		return ListTables{}, nil
	case ToolDescribeTable:
		table, err := requireString(name, "tableName", args.TableName)
		if err != nil {
			return nil, err
		}
		return DescribeTable{TableName: table}, nil
	case ToolRowCount:
		table, err := requireString(name, "tableName", args.TableName)
		if err != nil {
			return nil, err
		}
		return RowCount{TableName: table}, nil
	case ToolSampleData:
		table, err := requireString(name, "tableName", args.TableName)
		if err != nil {
			return nil, err
		}
		return SampleData{TableName: table, Limit: ClampLimit(args.Limit)}, nil
	case ToolExecuteQuery:
		query, err := requireString(name, "query", args.Query)
		if err != nil {
			return nil, err
		}
		if err := CheckQuery(query); err != nil {
			return nil, err
		}
		return ExecuteQuery{Query: query}, nil
	default:
		return nil, &copilot.ToolNotFoundError{Name: name}
	}
}

func requireString(tool, field string, v *string) (string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", &copilot.ArgumentError{Tool: tool, Field: field}
	}
	return *v, nil
}

// ClampLimit maps a requested row limit into [1, MaxSampleLimit]. A missing
// or zero limit means DefaultSampleLimit.
func ClampLimit(limit *float64) int {
	if limit == nil || *limit == 0 || math.IsNaN(*limit) {
		return DefaultSampleLimit
	}
	n := math.Trunc(*limit)
	switch {
	case n < 1:
		return 1
	case n > MaxSampleLimit:
		return MaxSampleLimit
	}
	return int(n)
}

var deniedKeywords = []string{"drop ", "delete ", "truncate ", "alter "}

// CheckQuery rejects statements containing a destructive keyword. It is a
// case-insensitive substring denylist, not a parser: "drop\ttable" passes
// while a literal such as 'please drop by' is rejected.
func CheckQuery(query string) error {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, kw := range deniedKeywords {
		if strings.Contains(q, kw) {
			return &copilot.UnsafeOperationError{Keyword: strings.TrimSpace(kw)}
		}
	}
	return nil
}
