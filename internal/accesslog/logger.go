// Package accesslog appends one JSON line per delivery request.
package accesslog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

type Entry struct {
	Time       time.Time `json:"time"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	Principal  string    `json:"principal,omitempty"`
	ClientIP   string    `json:"client_ip"`
	DurationMs int64     `json:"duration_ms"`
}

type Logger struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

func New(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Logger{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (l *Logger) Log(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enc.Encode(entry)
}

func (l *Logger) Close() error {
	return l.file.Close()
}
