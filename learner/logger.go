package learner

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/unixpickle/essentials"
)

// A Logger accumulates scalar metrics for one training step
// and flushes them as rows of a CSV file.
//
// Keys are fixed by the first Dump: the header is written
// from the keys recorded before it, and later rows reuse the
// same column order. Recording a new key after the first
// Dump is an error.
type Logger struct {
	// RunID distinguishes runs that share a log directory.
	RunID string

	file    *os.File
	writer  *csv.Writer
	columns []string
	pending map[string]float64
}

// NewLogger creates progress.csv inside logDir, creating the
// directory if needed.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, essentials.AddCtx("create logger", err)
	}
	f, err := os.Create(filepath.Join(logDir, "progress.csv"))
	if err != nil {
		return nil, essentials.AddCtx("create logger", err)
	}
	return &Logger{
		RunID:   uuid.NewString(),
		file:    f,
		writer:  csv.NewWriter(f),
		pending: map[string]float64{},
	}, nil
}

// Record stages a value for the next Dump, overwriting any
// value already staged under the key.
func (l *Logger) Record(key string, value float64) {
	l.pending[key] = value
}

// Dump writes one CSV row holding every recorded value, then
// clears the staged values.
func (l *Logger) Dump(step int) error {
	if l.columns == nil {
		for key := range l.pending {
			l.columns = append(l.columns, key)
		}
		sort.Strings(l.columns)
		header := append([]string{"run_id", "step"}, l.columns...)
		if err := l.writer.Write(header); err != nil {
			return essentials.AddCtx("dump log", err)
		}
	}
	row := []string{l.RunID, fmt.Sprintf("%d", step)}
	for _, key := range l.columns {
		value, ok := l.pending[key]
		if !ok {
			return fmt.Errorf("dump log: missing value for column %q", key)
		}
		row = append(row, fmt.Sprintf("%v", value))
		delete(l.pending, key)
	}
	if len(l.pending) > 0 {
		for key := range l.pending {
			return fmt.Errorf("dump log: key %q not in header", key)
		}
	}
	if err := l.writer.Write(row); err != nil {
		return essentials.AddCtx("dump log", err)
	}
	l.writer.Flush()
	return essentials.AddCtx("dump log", l.writer.Error())
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.file.Close()
		return essentials.AddCtx("close logger", err)
	}
	return essentials.AddCtx("close logger", l.file.Close())
}
