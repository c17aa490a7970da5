package sqltools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/inspirepan/copilot"
)

func tableNameSchema(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// Descriptors is the fixed tool set, in presentation order.
var Descriptors = []copilot.ToolDescriptor{
	{
		Name:        ToolListTables,
		Description: "List all tables in the PostgreSQL database",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
	},
	{
		Name:        ToolDescribeTable,
		Description: "Get the schema/structure of a specific PostgreSQL table",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tableName": tableNameSchema("Name of the table to describe"),
			},
			"required": []string{"tableName"},
		},
	},
	{
		Name:        ToolRowCount,
		Description: "Get the number of rows in a specific SQL table",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tableName": tableNameSchema("Name of the table to count rows for"),
			},
			"required": []string{"tableName"},
		},
	},
	{
		Name:        ToolSampleData,
		Description: "Get sample data from a specific SQL table",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tableName": tableNameSchema("Name of the table to get sample data from"),
				"limit": map[string]any{
					"type":        "number",
					"description": "Number of rows to return (default: 10, max: 100)",
					"minimum":     1,
					"maximum":     MaxSampleLimit,
				},
			},
			"required": []string{"tableName"},
		},
	},
	{
		Name:        ToolExecuteQuery,
		Description: "Execute a custom SQL query against the database",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "SQL query to execute"},
			},
			"required": []string{"query"},
		},
	},
}

// Catalog serves the SQL tools against one Datasource.
type Catalog struct {
	ds     Datasource
	logger *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Catalog over ds.
func New(ds Datasource, opts ...Option) *Catalog {
	c := &Catalog{ds: ds, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Catalog) ListTools(context.Context) ([]copilot.ToolDescriptor, error) {
	return slices.Clone(Descriptors), nil
}

func (c *Catalog) IsTool(name string) bool {
	return slices.ContainsFunc(Descriptors, func(d copilot.ToolDescriptor) bool { return d.Name == name })
}

// CallTool parses the arguments and runs the call. Validation failures are
// returned before any query is sent.
func (c *Catalog) CallTool(ctx context.Context, name string, args json.RawMessage) (*copilot.CallToolResult, error) {
	call, err := ParseCall(name, args)
	if err != nil {
		return nil, err
	}
	text, err := c.Run(ctx, call)
	if err != nil {
		return nil, &copilot.ToolExecutionError{Tool: name, Err: err}
	}
	return &copilot.CallToolResult{Content: []copilot.Content{copilot.TextContent(text)}}, nil
}

// Run executes a validated call and renders its summary text.
func (c *Catalog) Run(ctx context.Context, call Call) (string, error) {
	if c.ds == nil {
		return "", fmt.Errorf("no datasource configured")
	}
	c.logger.Debug("sql tool", "tool", call.ToolName(), "dialect", c.ds.Dialect())

	switch call := call.(type) {
	case ListTables:
		return c.listTables(ctx)
	case DescribeTable:
		return c.describeTable(ctx, call.TableName)
	case RowCount:
		return c.rowCount(ctx, call.TableName)
	case SampleData:
		return c.sampleData(ctx, call.TableName, call.Limit)
	case ExecuteQuery:
		return c.executeQuery(ctx, call.Query)
	default:
		return "", &copilot.ToolNotFoundError{Name: call.ToolName()}
	}
}

func (c *Catalog) listTables(ctx context.Context) (string, error) {
	res, err := c.ds.Query(ctx, listTablesSQL(c.ds.Dialect()))
	if err != nil {
		return "", fmt.Errorf("failed to list tables: %w", err)
	}
	var b strings.Builder
	records := res.Records()
	fmt.Fprintf(&b, "Found %d tables in the database:", len(records))
	for _, rec := range records {
		name, _ := rec.Get("table_name")
		b.WriteString("\n- ")
		b.WriteString(FormatValue(name))
	}
	return b.String(), nil
}

func (c *Catalog) describeTable(ctx context.Context, table string) (string, error) {
	res, err := c.ds.Query(ctx, describeTableSQL(c.ds.Dialect(), table))
	if err != nil {
		return "", fmt.Errorf("failed to describe table %s: %w", table, err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Table %q structure:", table)
	for _, rec := range res.Records() {
		b.WriteByte('\n')
		b.WriteString(formatColumn(rec))
	}
	return b.String(), nil
}

// formatColumn renders "name (type(len)) NULL|NOT NULL [DEFAULT d]".
func formatColumn(rec Record) string {
	name, _ := rec.Get("column_name")
	dataType, _ := rec.Get("data_type")
	nullable, _ := rec.Get("is_nullable")
	def, _ := rec.Get("column_default")
	maxLen, _ := rec.Get("character_maximum_length")

	typ := FormatValue(dataType)
	if l := FormatValue(maxLen); l != "" && l != "0" {
		typ += "(" + l + ")"
	}
	null := "NOT NULL"
	if FormatValue(nullable) == "YES" {
		null = "NULL"
	}
	s := fmt.Sprintf("%s (%s) %s", FormatValue(name), typ, null)
	if d := FormatValue(def); d != "" {
		s += " DEFAULT " + d
	}
	return s
}

func (c *Catalog) rowCount(ctx context.Context, table string) (string, error) {
	res, err := c.ds.Query(ctx, "SELECT COUNT(*) AS count FROM "+QuoteIdent(table))
	if err != nil {
		return "", fmt.Errorf("failed to get count for table %s: %w", table, err)
	}
	count := "0"
	if records := res.Records(); len(records) > 0 {
		if v, ok := records[0].Get("count"); ok && v != nil {
			count = FormatValue(v)
		}
	}
	return fmt.Sprintf("Table %q contains %s rows", table, count), nil
}

func (c *Catalog) sampleData(ctx context.Context, table string, limit int) (string, error) {
	res, err := c.ds.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", QuoteIdent(table), limit))
	if err != nil {
		return "", fmt.Errorf("failed to get sample data from table %s: %w", table, err)
	}
	records := res.Records()
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Sample data from %q (%d rows):\n%s", table, len(records), data), nil
}

func (c *Catalog) executeQuery(ctx context.Context, query string) (string, error) {
	res, err := c.ds.Query(ctx, query)
	if err != nil {
		return "", fmt.Errorf("query execution failed: %w", err)
	}
	data, err := json.MarshalIndent(res.Records(), "", "  ")
	if err != nil {
		return "", err
	}
	return "Query executed successfully. Result:\n" + string(data), nil
}

func listTablesSQL(d Dialect) string {
	if d == DialectSQLite {
		return `SELECT name AS table_name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	}
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`
}

func describeTableSQL(d Dialect, table string) string {
	if d == DialectSQLite {
		return `SELECT name AS column_name, type AS data_type,
  CASE WHEN "notnull" = 1 THEN 'NO' ELSE 'YES' END AS is_nullable,
  dflt_value AS column_default, NULL AS character_maximum_length
FROM pragma_table_info(` + QuoteLiteral(table) + `) ORDER BY cid`
	}
	return `SELECT column_name, data_type, is_nullable, column_default, character_maximum_length
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = ` + QuoteLiteral(table) + `
ORDER BY ordinal_position`
}

// QuoteIdent quotes a SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral quotes a SQL string literal.
func QuoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}

// FormatValue renders a scalar the way it should appear in summaries.
// Integral floats, as decoded from JSON frames, print without a fraction.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return FormatValue(float64(v))
	default:
		return fmt.Sprint(v)
	}
}

var _ copilot.LocalToolSource = (*Catalog)(nil)
