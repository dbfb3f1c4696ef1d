package chatlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecordWritesBothLines(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Record("s1", "Hello", "Hi there")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `msg="User: Hello"`) || !strings.Contains(lines[0], "session=s1") {
		t.Fatalf("unexpected user line %q", lines[0])
	}
	if !strings.Contains(lines[1], `msg="Bot: Hi there"`) {
		t.Fatalf("unexpected bot line %q", lines[1])
	}
}

func TestOpenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chat.log")

	for i := 0; i < 2; i++ {
		l, err := Open(path)
		if err != nil {
			t.Fatalf("Open err: %v", err)
		}
		l.Record("s1", "ping", "pong")
		if err := l.Close(); err != nil {
			t.Fatalf("Close err: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got := strings.Count(string(data), "User: ping"); got != 2 {
		t.Fatalf("expected 2 appended user lines, got %d", got)
	}
}
