package base

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// DebugLogger appends provider traffic to a JSONL file. A nil *DebugLogger
// is valid and discards everything. It is safe for concurrent use.
type DebugLogger struct {
	provider string
	model    string

	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// OpenDebugLogger opens path for appending. An empty path returns a nil
// logger and no error.
func OpenDebugLogger(path, provider, model string) (*DebugLogger, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &DebugLogger{provider: provider, model: model, f: f, enc: json.NewEncoder(f)}, nil
}

func (l *DebugLogger) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Record writes one line tagged with the logger's provider and model.
func (l *DebugLogger) Record(recordType string, data any) {
	if l == nil || l.enc == nil {
		return
	}
	rec := DebugRecord{
		Time:     time.Now().UTC().Format(time.RFC3339Nano),
		Provider: l.provider,
		Model:    l.model,
		Type:     recordType,
		Data:     data,
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.enc.Encode(rec)
}

// DebugRecord is one JSONL entry.
type DebugRecord struct {
	Time     string `json:"time"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Type     string `json:"type"`
	Data     any    `json:"data,omitempty"`
}
