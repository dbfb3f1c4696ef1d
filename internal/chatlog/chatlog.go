// Package chatlog appends every user message and bot reply to a line-oriented
// log file.
package chatlog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Logger records conversation lines.
type Logger struct {
	logger *slog.Logger
	closer io.Closer
	once   sync.Once
}

// Open appends to the log file at path, creating it when missing.
func Open(path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open chat log %s", path)
	}

	l := New(f)
	l.closer = f
	return l, nil
}

// New writes log lines to w.
func New(w io.Writer) *Logger {
	return &Logger{logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// Discard returns a logger that drops every line.
func Discard() *Logger {
	return New(io.Discard)
}

// Record writes the user text and the bot reply of one exchange.
func (l *Logger) Record(sessionID, user, bot string) {
	l.logger.Info("User: "+user, "session", sessionID)
	l.logger.Info("Bot: "+bot, "session", sessionID)
}

// Close releases the underlying file, if any.
func (l *Logger) Close() error {
	var err error
	l.once.Do(func() {
		if l.closer != nil {
			err = l.closer.Close()
		}
	})
	return err
}
