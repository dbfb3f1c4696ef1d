package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/pymind/backend/internal/chatlog"
	"github.com/zhouzirui/pymind/backend/internal/config"
	"github.com/zhouzirui/pymind/backend/internal/handler"
	"github.com/zhouzirui/pymind/backend/internal/model/persona"
	"github.com/zhouzirui/pymind/backend/internal/service/ai"
	"github.com/zhouzirui/pymind/backend/internal/service/chat"
	"github.com/zhouzirui/pymind/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	transcripts, err := store.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		log.Fatalf("failed to open transcript store: %v", err)
	}
	defer transcripts.Close()
	log.Printf("transcript store ready backend=%s path=%s", cfg.Storage.Backend, cfg.Storage.Path)

	conversationLog, err := chatlog.Open(cfg.Chat.LogPath)
	if err != nil {
		log.Fatalf("failed to open chat log: %v", err)
	}
	defer conversationLog.Close()

	// A nil model client keeps commands working while every prompt reports the
	// missing configuration to the user.
	var modelClient chat.ModelClient
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
		} else {
			modelClient = aiService
			log.Printf("AI service initialized provider=%s", aiService.Provider())
		}
	} else {
		log.Printf("model provider %s is not configured, skipping AI initialization", cfg.AI.Provider)
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	chatService := chat.NewService(transcripts, modelClient, chat.Options{
		Persona:  persona.Resolve(personaStore, cfg.Chat.PersonaID),
		Window:   cfg.Chat.PromptWindow,
		Recorder: conversationLog,
	})

	router := handler.NewRouter(personaStore, chatService)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("PyMind backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Printf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
