// Package grafana runs SQL through a Grafana datasource via /api/ds/query.
package grafana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/inspirepan/copilot/sqltools"
	"github.com/tidwall/gjson"
)

const (
	defaultTimeout = 30 * time.Second
	refID          = "A"
	// maxErrorBody caps how much of a failed response ends up in an error.
	maxErrorBody = 512
)

// Config identifies the Grafana instance and the datasource to query.
type Config struct {
	URL   string
	Token string
	// OrgID is sent as X-Grafana-Org-Id when non-zero.
	OrgID int64
	// UID wins over Name. Name is resolved to a UID on first use.
	UID     string
	Name    string
	Dialect sqltools.Dialect
	Timeout time.Duration
}

// Datasource implements sqltools.Datasource against Grafana.
type Datasource struct {
	cfg        Config
	httpClient *http.Client

	mu  sync.Mutex
	uid string
}

// New creates a Datasource. It defaults to the postgres dialect and a 30s
// timeout.
func New(cfg Config) (*Datasource, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("grafana url is required")
	}
	if cfg.UID == "" && cfg.Name == "" {
		return nil, fmt.Errorf("grafana datasource uid or name is required")
	}
	if cfg.Dialect == "" {
		cfg.Dialect = sqltools.DialectPostgres
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Datasource{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		uid:        cfg.UID,
	}, nil
}

func (d *Datasource) Dialect() sqltools.Dialect { return d.cfg.Dialect }

type dsQuery struct {
	RefID      string         `json:"refId"`
	Datasource map[string]any `json:"datasource"`
	RawSQL     string         `json:"rawSql"`
	Format     string         `json:"format"`
}

type dsRequest struct {
	Queries []dsQuery `json:"queries"`
	From    string    `json:"from"`
	To      string    `json:"to"`
}

// Query runs sql as a table-format query over the last 24h.
func (d *Datasource) Query(ctx context.Context, sql string) (*sqltools.Result, error) {
	uid, err := d.resolveUID(ctx)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(dsRequest{
		Queries: []dsQuery{{
			RefID:      refID,
			Datasource: map[string]any{"uid": uid},
			RawSQL:     sql,
			Format:     "table",
		}},
		From: "now-24h",
		To:   "now",
	})
	if err != nil {
		return nil, err
	}

	raw, err := d.do(ctx, http.MethodPost, "/api/ds/query", body)
	if err != nil {
		return nil, err
	}
	return ParseFrames(raw, refID)
}

func (d *Datasource) resolveUID(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.uid != "" {
		return d.uid, nil
	}
	raw, err := d.do(ctx, http.MethodGet, "/api/datasources/name/"+url.PathEscape(d.cfg.Name), nil)
	if err != nil {
		return "", fmt.Errorf("datasource %s not found: %w", d.cfg.Name, err)
	}
	uid := gjson.GetBytes(raw, "uid").String()
	if uid == "" {
		return "", fmt.Errorf("datasource %s not found", d.cfg.Name)
	}
	d.uid = uid
	return uid, nil
}

func (d *Datasource) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.cfg.URL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.Token)
	}
	if d.cfg.OrgID != 0 {
		req.Header.Set("X-Grafana-Org-Id", fmt.Sprint(d.cfg.OrgID))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		// ds/query reports query errors with a non-2xx status and a frame-level message.
		if msg := gjson.GetBytes(raw, "results."+refID+".error").String(); msg != "" {
			return nil, errors.New(msg)
		}
		if msg := gjson.GetBytes(raw, "message").String(); msg != "" {
			return nil, fmt.Errorf("grafana %s: %s", resp.Status, msg)
		}
		text := string(raw)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, fmt.Errorf("grafana %s: %s", resp.Status, strings.TrimSpace(text))
	}
	return raw, nil
}

// ParseFrames converts the first frame of a ds/query response into rows.
// Frame values are column-major; an absent frame yields an empty result.
func ParseFrames(raw []byte, ref string) (*sqltools.Result, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid JSON in ds/query response")
	}
	result := gjson.GetBytes(raw, "results."+ref)
	if msg := result.Get("error").String(); msg != "" {
		return nil, errors.New(msg)
	}

	frame := result.Get("frames.0")
	out := &sqltools.Result{}
	if !frame.Exists() {
		return out, nil
	}
	for _, f := range frame.Get("schema.fields").Array() {
		out.Columns = append(out.Columns, f.Get("name").String())
	}

	columns := frame.Get("data.values").Array()
	rows := 0
	for _, col := range columns {
		rows = max(rows, len(col.Array()))
	}
	out.Rows = make([][]any, rows)
	for r := range out.Rows {
		out.Rows[r] = make([]any, len(out.Columns))
	}
	for c, col := range columns {
		if c >= len(out.Columns) {
			break
		}
		for r, v := range col.Array() {
			out.Rows[r][c] = v.Value()
		}
	}
	return out, nil
}

var _ sqltools.Datasource = (*Datasource)(nil)
