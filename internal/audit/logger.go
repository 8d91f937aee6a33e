package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Command   string    `json:"command,omitempty"`
	Outcome   string    `json:"outcome"`
	Code      string    `json:"code"`
	LatencyMs int64     `json:"latencyMs"`
}

// Logger appends audit entries to a rotating JSONL file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      io.WriteCloser
}

// NewLogger creates an audit logger writing to <logDir>/audit.jsonl.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, "audit.jsonl")
	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
		},
	}, nil
}

// LogAction records one command action. Command carries the formatted
// wire text when one was produced; it is empty for failures that never
// reached formatting.
func (l *Logger) LogAction(ctx context.Context, action, command, outcome string, latency time.Duration) {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		User:      userFromContext(ctx),
		Action:    action,
		Command:   command,
		Outcome:   outcome,
		Code:      codeFromOutcome(outcome),
		LatencyMs: latency.Milliseconds(),
	}
	l.writeEntry(entry)
}

func (l *Logger) writeEntry(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: marshal entry: %v\n", err)
		return
	}
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "audit: write entry: %v\n", err)
	}
}

// userFromContext extracts the authenticated subject placed in the
// context by the auth middleware.
func userFromContext(ctx context.Context) string {
	if sub, ok := ctx.Value(userContextKey{}).(string); ok && sub != "" {
		return sub
	}
	return "unknown"
}

type userContextKey struct{}

// WithUser attaches the authenticated subject to the context for audit
// attribution.
func WithUser(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, userContextKey{}, subject)
}

// codeFromOutcome maps outcome tokens to normalized codes. Outcomes
// that already are codes pass through.
func codeFromOutcome(outcome string) string {
	switch outcome {
	case "SUCCESS":
		return "SUCCESS"
	case "DEGRADED":
		return "PROTOCOL_QUIRK"
	default:
		if strings.ToUpper(outcome) == outcome && outcome != "" {
			return outcome
		}
		return "ERROR"
	}
}

// FilePath returns the audit log file path.
func (l *Logger) FilePath() string {
	return l.filePath
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
