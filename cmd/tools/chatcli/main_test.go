package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	chatmodel "github.com/zhouzirui/pymind/backend/internal/model/chat"
)

func TestParseLineExtractsAttachments(t *testing.T) {
	in := parseLine("summarise @notes/a.txt please  @b.md")

	if in.Text != "summarise please" {
		t.Fatalf("unexpected text %q", in.Text)
	}
	if len(in.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(in.Attachments))
	}
	if in.Attachments[0].Name() != "a.txt" || in.Attachments[0].Kind() != chatmodel.AttachmentKindFile {
		t.Fatalf("unexpected attachment %q", in.Attachments[0].Name())
	}
}

func TestLocalFileContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := localFile(path).Content(context.Background())
	if err != nil || string(data) != "hi" {
		t.Fatalf("unexpected content %q err=%v", data, err)
	}

	if _, err := localFile(filepath.Join(t.TempDir(), "missing")).Content(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTerminalOutput(t *testing.T) {
	var buf bytes.Buffer
	term := &terminal{w: &buf}
	ctx := context.Background()

	handle, err := term.SendTransient(ctx, chatmodel.Reply{Content: "Thinking...", Author: "PyMind"})
	if err != nil {
		t.Fatalf("SendTransient err: %v", err)
	}
	_ = handle.Remove(ctx)
	_ = term.Send(ctx, chatmodel.Reply{Content: "Hi", Author: "PyMind"})

	if got := buf.String(); got != "PyMind: Thinking...\r\033[KPyMind: Hi\n" {
		t.Fatalf("unexpected terminal output %q", got)
	}
}
