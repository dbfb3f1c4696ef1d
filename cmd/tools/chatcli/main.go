package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/pymind/backend/internal/chatlog"
	"github.com/zhouzirui/pymind/backend/internal/config"
	chatmodel "github.com/zhouzirui/pymind/backend/internal/model/chat"
	"github.com/zhouzirui/pymind/backend/internal/model/persona"
	"github.com/zhouzirui/pymind/backend/internal/service/ai"
	"github.com/zhouzirui/pymind/backend/internal/service/chat"
	"github.com/zhouzirui/pymind/backend/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] failed to load .env, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	session := flag.String("session", "", "resume an existing session id; empty starts a new one")
	backend := flag.String("store", cfg.Storage.Backend, "store backend: docfile, bolt or memory")
	path := flag.String("path", cfg.Storage.Path, "store file path")
	quiet := flag.Bool("quiet", false, "suppress operational logs")
	flag.Parse()

	if *quiet {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transcripts, err := store.Open(*backend, *path)
	if err != nil {
		log.Fatalf("failed to open transcript store: %v", err)
	}
	defer transcripts.Close()

	recorder, err := chatlog.Open(cfg.Chat.LogPath)
	if err != nil {
		log.Fatalf("failed to open chat log: %v", err)
	}
	defer recorder.Close()

	var modelClient chat.ModelClient
	if svc, err := ai.NewService(ctx, cfg.AI); err != nil {
		log.Printf("[WARN] model unavailable: %v", err)
	} else {
		modelClient = svc
	}

	personas := persona.NewMemoryStore(persona.Seed())
	chatSvc := chat.NewService(transcripts, modelClient, chat.Options{
		Persona:  persona.Resolve(personas, cfg.Chat.PersonaID),
		Window:   cfg.Chat.PromptWindow,
		Recorder: recorder,
	})

	out := &terminal{w: os.Stdout}
	sessionID := *session
	if sessionID == "" {
		created, err := chatSvc.CreateSession(ctx, out)
		if err != nil {
			log.Fatalf("failed to create session: %v", err)
		}
		sessionID = created.ID
	} else if err := chatSvc.StartSession(ctx, sessionID, out); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	fmt.Fprintf(os.Stdout, "session: %s (attach files with @path, Ctrl+D to quit)\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stdout, "> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		_ = chatSvc.HandleMessage(ctx, sessionID, parseLine(scanner.Text()), out)
	}
}

// parseLine splits "@file" tokens out of the line as attachments.
func parseLine(line string) chatmodel.Inbound {
	var (
		words []string
		files []chatmodel.Attachment
	)
	for _, field := range strings.Fields(line) {
		if strings.HasPrefix(field, "@") && len(field) > 1 {
			files = append(files, localFile(field[1:]))
			continue
		}
		words = append(words, field)
	}
	return chatmodel.Inbound{Text: strings.Join(words, " "), Attachments: files}
}

type localFile string

func (f localFile) Name() string { return filepath.Base(string(f)) }
func (f localFile) Kind() string { return chatmodel.AttachmentKindFile }

func (f localFile) Content(context.Context) ([]byte, error) {
	return os.ReadFile(string(f))
}

// terminal prints controller output to a writer.
type terminal struct {
	w io.Writer
}

func (t *terminal) Send(_ context.Context, reply chatmodel.Reply) error {
	_, err := fmt.Fprintln(t.w, format(reply))
	return err
}

func (t *terminal) SendTransient(_ context.Context, reply chatmodel.Reply) (chat.Removable, error) {
	_, err := fmt.Fprint(t.w, format(reply))
	return clearLine{w: t.w}, err
}

func format(reply chatmodel.Reply) string {
	if reply.Author == "" {
		return reply.Content
	}
	return reply.Author + ": " + reply.Content
}

type clearLine struct {
	w io.Writer
}

func (c clearLine) Remove(context.Context) error {
	_, err := fmt.Fprint(c.w, "\r\033[K")
	return err
}
