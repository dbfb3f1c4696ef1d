package chat_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	chatmodel "github.com/zhouzirui/pymind/backend/internal/model/chat"
	chat "github.com/zhouzirui/pymind/backend/internal/service/chat"
	"github.com/zhouzirui/pymind/backend/internal/store"
)

type sentMessage struct {
	reply     chatmodel.Reply
	transient bool
	removed   bool
}

type recordingOutput struct {
	mu   sync.Mutex
	sent []*sentMessage
}

func (o *recordingOutput) Send(_ context.Context, reply chatmodel.Reply) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, &sentMessage{reply: reply})
	return nil
}

func (o *recordingOutput) SendTransient(_ context.Context, reply chatmodel.Reply) (chat.Removable, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	msg := &sentMessage{reply: reply, transient: true}
	o.sent = append(o.sent, msg)
	return removeFunc(func() {
		o.mu.Lock()
		msg.removed = true
		o.mu.Unlock()
	}), nil
}

// visible returns the contents still on screen.
func (o *recordingOutput) visible() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, m := range o.sent {
		if !m.removed {
			out = append(out, m.reply.Content)
		}
	}
	return out
}

func (o *recordingOutput) last() string {
	v := o.visible()
	if len(v) == 0 {
		return ""
	}
	return v[len(v)-1]
}

type removeFunc func()

func (f removeFunc) Remove(context.Context) error {
	f()
	return nil
}

type fakeModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	block   chan struct{}
}

func (m *fakeModel) Generate(_ context.Context, prompt string) (string, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

type recorder struct {
	lines []string
}

func (r *recorder) Record(_, user, bot string) {
	r.lines = append(r.lines, "User: "+user, "Bot: "+bot)
}

type failingStore struct {
	store.Store
	failReplace bool
}

func (s *failingStore) Replace(ctx context.Context, id string, tr chatmodel.Transcript) error {
	if s.failReplace {
		return errors.New("disk full")
	}
	return s.Store.Replace(ctx, id, tr)
}

type brokenFile struct{ name string }

func (f brokenFile) Name() string { return f.name }
func (f brokenFile) Kind() string { return chatmodel.AttachmentKindFile }
func (f brokenFile) Content(context.Context) ([]byte, error) {
	return nil, errors.New("upload expired")
}

func newService(t *testing.T, model chat.ModelClient) (*chat.Service, store.Store, *recorder) {
	t.Helper()
	st := store.NewMemoryStore()
	rec := &recorder{}
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	svc := chat.NewService(st, model, chat.Options{
		Recorder: rec,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return svc, st, rec
}

func startSession(t *testing.T, svc *chat.Service, out chat.Output) string {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), out)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	return session.ID
}

func TestCreateSessionGreets(t *testing.T) {
	svc, st, _ := newService(t, &fakeModel{})
	out := &recordingOutput{}

	id := startSession(t, svc, out)

	if out.last() != "Welcome to PyMind!" {
		t.Fatalf("unexpected greeting %q", out.last())
	}
	tr, ok, err := st.Get(context.Background(), id)
	if err != nil || !ok || len(tr) != 0 {
		t.Fatalf("expected empty stored transcript, ok=%v len=%d err=%v", ok, len(tr), err)
	}
}

func TestHandleMessageScenario(t *testing.T) {
	model := &fakeModel{reply: "Hi there"}
	svc, st, rec := newService(t, model)
	out := &recordingOutput{}
	ctx := context.Background()
	id := startSession(t, svc, out)

	if err := svc.HandleMessage(ctx, id, chatmodel.Inbound{Text: "  Hello  "}, out); err != nil {
		t.Fatalf("HandleMessage err: %v", err)
	}

	tr, _ := svc.LoadTranscript(ctx, id)
	if len(tr) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(tr))
	}
	if tr[0].User != "Hello" || tr[0].BotText() != "Hi there" {
		t.Fatalf("unexpected turn %+v", tr[0])
	}
	if tr[0].Timestamp == "" || tr[0].BotTimestamp == nil {
		t.Fatalf("timestamps missing: %+v", tr[0])
	}
	if out.last() != "Hi there" {
		t.Fatalf("unexpected reply %q", out.last())
	}
	for _, v := range out.visible() {
		if v == chat.ThinkingMessage {
			t.Fatal("thinking indicator should be removed")
		}
	}
	if got := strings.Join(rec.lines, "|"); got != "User: Hello|Bot: Hi there" {
		t.Fatalf("unexpected log lines %q", got)
	}

	if err := svc.HandleMessage(ctx, id, chatmodel.Inbound{Text: "/RESET"}, out); err != nil {
		t.Fatalf("reset err: %v", err)
	}
	tr, _, _ = st.Get(ctx, id)
	if len(tr) != 0 {
		t.Fatalf("expected empty transcript after reset, got %d", len(tr))
	}
	if out.last() != chat.ResetMessage {
		t.Fatalf("unexpected reset reply %q", out.last())
	}
	if len(model.prompts) != 1 {
		t.Fatalf("commands must not call the model, prompts=%d", len(model.prompts))
	}
}

func TestHandleMessageAppendsTurns(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	svc, _, _ := newService(t, model)
	out := &recordingOutput{}
	ctx := context.Background()
	id := startSession(t, svc, out)

	for i := 1; i <= 3; i++ {
		if err := svc.HandleMessage(ctx, id, chatmodel.Inbound{Text: fmt.Sprintf("msg %d", i)}, out); err != nil {
			t.Fatalf("HandleMessage %d err: %v", i, err)
		}
	}

	tr, _ := svc.LoadTranscript(ctx, id)
	if len(tr) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(tr))
	}
	for i, turn := range tr {
		if turn.User != fmt.Sprintf("msg %d", i+1) || !turn.Answered() {
			t.Fatalf("unexpected turn %d: %+v", i, turn)
		}
	}

	lastPrompt := model.prompts[len(model.prompts)-1]
	if !strings.Contains(lastPrompt, "User: msg 1\nBot: ok\n") || !strings.HasSuffix(lastPrompt, "User: msg 3\nUser: ") {
		t.Fatalf("unexpected prompt %q", lastPrompt)
	}
}

func TestHandleMessageModelFailureKeepsUserTurn(t *testing.T) {
	model := &fakeModel{err: errors.New("connection reset")}
	svc, _, rec := newService(t, model)
	out := &recordingOutput{}
	ctx := context.Background()
	id := startSession(t, svc, out)

	err := svc.HandleMessage(ctx, id, chatmodel.Inbound{Text: "Hello"}, out)
	if err == nil {
		t.Fatal("expected error from model failure")
	}

	tr, _ := svc.LoadTranscript(ctx, id)
	if len(tr) != 1 || tr[0].User != "Hello" || tr[0].Answered() {
		t.Fatalf("expected pending user turn, got %+v", tr)
	}
	if !strings.HasPrefix(out.last(), chat.ErrorReplyPrefix) || !strings.Contains(out.last(), "connection reset") {
		t.Fatalf("unexpected error reply %q", out.last())
	}
	if len(rec.lines) != 0 {
		t.Fatal("failed exchange must not be recorded")
	}
}

func TestHandleMessageEmptyModelText(t *testing.T) {
	svc, _, _ := newService(t, &fakeModel{reply: "  "})
	out := &recordingOutput{}
	ctx := context.Background()
	id := startSession(t, svc, out)

	if err := svc.HandleMessage(ctx, id, chatmodel.Inbound{Text: "Hello"}, out); err != nil {
		t.Fatalf("HandleMessage err: %v", err)
	}

	tr, _ := svc.LoadTranscript(ctx, id)
	if tr[0].BotText() != chat.NoResponseMessage {
		t.Fatalf("expected sentinel reply stored, got %q", tr[0].BotText())
	}
	if out.last() != chat.NoResponseMessage {
		t.Fatalf("expected sentinel reply shown, got %q", out.last())
	}
}

func TestHandleMessageStoreFailure(t *testing.T) {
	st := &failingStore{Store: store.NewMemoryStore(), failReplace: true}
	model := &fakeModel{reply: "unused"}
	svc := chat.NewService(st, model, chat.Options{})
	out := &recordingOutput{}

	err := svc.HandleMessage(context.Background(), "s1", chatmodel.Inbound{Text: "Hello"}, out)
	if err == nil {
		t.Fatal("expected store error")
	}
	if out.last() != chat.ErrorReplyPrefix+"disk full" {
		t.Fatalf("unexpected error reply %q", out.last())
	}
	if len(model.prompts) != 0 {
		t.Fatal("model must not be called when the user turn cannot be saved")
	}
}

func TestHandleMessageWithoutModel(t *testing.T) {
	svc, _, _ := newService(t, nil)
	out := &recordingOutput{}
	id := startSession(t, svc, out)

	err := svc.HandleMessage(context.Background(), id, chatmodel.Inbound{Text: "Hello"}, out)
	if !errors.Is(err, chat.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}

	if err := svc.HandleMessage(context.Background(), id, chatmodel.Inbound{Text: "/help"}, out); err != nil {
		t.Fatalf("commands should work without a model: %v", err)
	}
	if out.last() != chat.HelpMessage {
		t.Fatalf("unexpected help reply %q", out.last())
	}
}

func TestHandleMessageAttachments(t *testing.T) {
	model := &fakeModel{reply: "Got it"}
	svc, _, _ := newService(t, model)
	out := &recordingOutput{}
	ctx := context.Background()
	id := startSession(t, svc, out)

	in := chatmodel.Inbound{
		Text: "see files",
		Attachments: []chatmodel.Attachment{
			chatmodel.InlineFile{FileName: "notes.txt", Data: "aGVsbG8="},
			brokenFile{name: "broken.pdf"},
			chatmodel.InlineFile{FileName: "photo.png", Type: "image", Data: "aGVsbG8="},
			chatmodel.InlineFile{FileName: "data.zzz", Data: "aGVsbG8="},
		},
	}
	if err := svc.HandleMessage(ctx, id, in, out); err != nil {
		t.Fatalf("HandleMessage err: %v", err)
	}

	tr, _ := svc.LoadTranscript(ctx, id)
	want := "see files\n[Attached file: notes.txt (text/plain)]\n[Attached file: data.zzz (unknown)]"
	if tr[0].User != want {
		t.Fatalf("got user text %q want %q", tr[0].User, want)
	}

	visible := strings.Join(out.visible(), "\n")
	for _, fragment := range []string{
		"File 'notes.txt' received!",
		"Error processing file broken.pdf: upload expired",
		"File 'data.zzz' received!",
		"Got it",
	} {
		if !strings.Contains(visible, fragment) {
			t.Fatalf("missing %q in output:\n%s", fragment, visible)
		}
	}
	if strings.Contains(visible, "photo.png") {
		t.Fatal("non-file elements must be ignored")
	}
}

func TestHandleMessageRejectsConcurrentMessage(t *testing.T) {
	model := &fakeModel{reply: "slow", block: make(chan struct{})}
	svc, _, _ := newService(t, model)
	out := &recordingOutput{}
	ctx := context.Background()
	id := startSession(t, svc, out)

	done := make(chan error, 1)
	go func() {
		done <- svc.HandleMessage(ctx, id, chatmodel.Inbound{Text: "first"}, out)
	}()

	// Wait until the first message is waiting on the model.
	deadline := time.Now().Add(2 * time.Second)
	for {
		tr, _ := svc.LoadTranscript(ctx, id)
		if len(tr) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first message never reached the model")
		}
		time.Sleep(5 * time.Millisecond)
	}

	second := &recordingOutput{}
	if err := svc.HandleMessage(ctx, id, chatmodel.Inbound{Text: "second"}, second); !errors.Is(err, chat.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}

	close(model.block)
	if err := <-done; err != nil {
		t.Fatalf("first message err: %v", err)
	}

	tr, _ := svc.LoadTranscript(ctx, id)
	if len(tr) != 1 || tr[0].User != "first" {
		t.Fatalf("busy message must not touch the transcript: %+v", tr)
	}
}

func TestHandleMessageRequiresSession(t *testing.T) {
	svc, _, _ := newService(t, &fakeModel{})
	out := &recordingOutput{}

	if err := svc.HandleMessage(context.Background(), "", chatmodel.Inbound{Text: "hi"}, out); !errors.Is(err, chat.ErrSessionRequired) {
		t.Fatalf("expected ErrSessionRequired, got %v", err)
	}
}

func TestLoadTranscriptNotFound(t *testing.T) {
	svc, _, _ := newService(t, &fakeModel{})

	if _, err := svc.LoadTranscript(context.Background(), "missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
