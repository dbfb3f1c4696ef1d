package chat

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	chatmodel "github.com/zhouzirui/pymind/backend/internal/model/chat"
	"github.com/zhouzirui/pymind/backend/internal/model/persona"
	"github.com/zhouzirui/pymind/backend/internal/service/ai"
	"github.com/zhouzirui/pymind/backend/internal/store"
)

var (
	ErrSessionRequired  = errors.New("session id is required")
	ErrSessionNotFound  = store.ErrSessionNotFound
	ErrSessionBusy      = errors.New("session is busy with another message")
	ErrModelUnavailable = errors.New("model client is not configured")
)

// Fixed controller replies.
const (
	ThinkingMessage   = "Thinking..."
	NoResponseMessage = "Error: model returned no response."
	ErrorReplyPrefix  = "An error occurred: "
)

// Output is the capability a UI runtime offers the controller.
type Output interface {
	Send(ctx context.Context, reply chatmodel.Reply) error
	SendTransient(ctx context.Context, reply chatmodel.Reply) (Removable, error)
}

// Removable is a transient message that can be taken down later.
type Removable interface {
	Remove(ctx context.Context) error
}

// ModelClient generates reply text for a prompt.
type ModelClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Recorder receives every completed exchange.
type Recorder interface {
	Record(sessionID, user, bot string)
}

// Options tune the controller.
type Options struct {
	Persona  persona.Persona
	Window   int
	Recorder Recorder
	Now      func() time.Time
}

// Service orchestrates transcript handling for every incoming message.
//
// At most one message per session may be in flight; a concurrent message for
// a busy session is rejected with ErrSessionBusy. Different sessions are
// handled independently.
type Service struct {
	store    store.Store
	model    ModelClient
	persona  persona.Persona
	window   int
	recorder Recorder
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService wires the controller. model may be nil, in which case every
// non-command message fails with ErrModelUnavailable.
func NewService(st store.Store, model ModelClient, opts Options) *Service {
	if opts.Persona.ID == "" {
		opts.Persona = persona.Seed()[0]
	}
	if opts.Window <= 0 {
		opts.Window = ai.DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		store:    st,
		model:    model,
		persona:  opts.Persona,
		window:   opts.Window,
		recorder: opts.Recorder,
		now:      opts.Now,
		inflight: make(map[string]struct{}),
	}
}

// Persona returns the assistant identity used for replies.
func (s *Service) Persona() persona.Persona {
	return s.persona
}

// CreateSession provisions a new session id and starts it.
func (s *Service) CreateSession(ctx context.Context, out Output) (chatmodel.Session, error) {
	session := chatmodel.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.StartSession(ctx, session.ID, out); err != nil {
		return chatmodel.Session{}, err
	}
	return session, nil
}

// StartSession ensures a transcript exists for sessionID and greets the user.
func (s *Service) StartSession(ctx context.Context, sessionID string, out Output) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	if err := s.store.CreateIfAbsent(ctx, sessionID); err != nil {
		return err
	}

	log.Printf("[chat] session started: %s", sessionID)
	return out.Send(ctx, chatmodel.Reply{Content: s.persona.OpeningLine})
}

// LoadTranscript returns the stored transcript of sessionID.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) (chatmodel.Transcript, error) {
	transcript, ok, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return transcript, nil
}

// HandleMessage processes one user message end to end. Every failure is
// logged and reported to the user through out; the returned error is for the
// caller's bookkeeping only. Writes committed before a failure are kept.
func (s *Service) HandleMessage(ctx context.Context, sessionID string, in chatmodel.Inbound, out Output) (err error) {
	if sessionID == "" {
		s.report(ctx, sessionID, out, ErrSessionRequired)
		return ErrSessionRequired
	}

	release, err := s.acquire(sessionID)
	if err != nil {
		s.report(ctx, sessionID, out, err)
		return err
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
			s.report(ctx, sessionID, out, err)
		}
	}()

	if err = s.handle(ctx, sessionID, in, out); err != nil {
		s.report(ctx, sessionID, out, err)
	}
	return err
}

func (s *Service) handle(ctx context.Context, sessionID string, in chatmodel.Inbound, out Output) error {
	history, _, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(in.Text)
	if cmd, ok := ParseCommand(text); ok {
		return s.runCommand(ctx, cmd, sessionID, history, out)
	}

	text = s.processAttachments(ctx, sessionID, text, in.Attachments, out)

	// Persist the user turn before calling the model so it survives a failure.
	history = history.Append(text, s.now())
	if err := s.store.Replace(ctx, sessionID, history); err != nil {
		return err
	}

	prompt := ai.BuildPrompt(s.persona.SystemMessage, history, s.window)

	thinking, err := out.SendTransient(ctx, chatmodel.Reply{Content: ThinkingMessage, Author: s.persona.Name})
	if err != nil {
		return err
	}

	reply, genErr := s.generate(ctx, prompt)
	if rmErr := thinking.Remove(ctx); rmErr != nil {
		if genErr != nil {
			log.Printf("[chat] session=%s failed to remove indicator: %v", sessionID, rmErr)
		} else {
			return rmErr
		}
	}
	if genErr != nil {
		return genErr
	}
	if strings.TrimSpace(reply) == "" {
		reply = NoResponseMessage
	}

	if err := out.Send(ctx, chatmodel.Reply{Content: reply, Author: s.persona.Name}); err != nil {
		return err
	}

	history.Answer(reply, s.now())
	if err := s.store.Replace(ctx, sessionID, history); err != nil {
		return err
	}

	if s.recorder != nil {
		s.recorder.Record(sessionID, text, reply)
	}
	return nil
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	if s.model == nil {
		return "", ErrModelUnavailable
	}
	return s.model.Generate(ctx, prompt)
}

func (s *Service) acquire(sessionID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[sessionID]; busy {
		return nil, ErrSessionBusy
	}
	s.inflight[sessionID] = struct{}{}

	return func() {
		s.mu.Lock()
		delete(s.inflight, sessionID)
		s.mu.Unlock()
	}, nil
}

// report logs err with its stack and shows its message to the user.
func (s *Service) report(ctx context.Context, sessionID string, out Output, err error) {
	log.Printf("[chat] session=%s message failed: %+v", sessionID, err)
	if sendErr := out.Send(ctx, chatmodel.Reply{Content: ErrorReplyPrefix + err.Error()}); sendErr != nil {
		log.Printf("[chat] session=%s failed to report error: %v", sessionID, sendErr)
	}
}
