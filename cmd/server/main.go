package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vango-go/vango"

	"helper_chat/app/routes"
	"helper_chat/internal/backend"
	"helper_chat/internal/config"
	"helper_chat/internal/locale"
	"helper_chat/internal/localstate"
	chatsvc "helper_chat/internal/services/chat"
	profilesvc "helper_chat/internal/services/profile"
	"helper_chat/internal/session"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := slog.Default()

	configErr := cfg.Validate()
	if configErr != nil {
		// The app still starts and renders a configuration notice instead
		// of the chat, matching the behavior with placeholder credentials.
		logger.Error("invalid configuration", "error", configErr)
	}

	state, err := localstate.Open(cfg.LocalStatePath)
	if err != nil {
		logger.Error("failed to open local state store", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	client := backend.New(cfg.BackendURL, cfg.BackendAnonKey, logger)
	feed := backend.NewFeed(cfg.BackendURL, cfg.BackendAnonKey, logger)

	startLocale := cfg.DefaultLocale
	if value, err := state.Get(context.Background(), localstate.KeyLocale); err == nil && value != "" {
		startLocale = value
	}

	sessions := session.NewManager(client, state, logger)
	reconciler := chatsvc.NewReconciler(client, chatsvc.NewFeedSource(feed), chatsvc.Config{
		ReplyText:  locale.ForKey(startLocale).T("chat.aiResponse"),
		ReplyDelay: cfg.ReplyDelay,
		TitleLimit: cfg.TitleLimit,
		ListLimit:  cfg.ListLimit,
	}, logger)
	profiles := profilesvc.NewService(client, logger)

	app, err := vango.New(vango.Config{
		Session: vango.SessionConfig{
			ResumeWindow: vango.ResumeWindow(30 * time.Second),
		},
		Static: vango.StaticConfig{
			Dir:    "public",
			Prefix: "/",
		},
		DevMode: cfg.DevMode,
	})
	if err != nil {
		logger.Error("failed to create app", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Conversation and profile state follow the session: loaded on sign-in,
	// torn down on sign-out.
	sessions.OnChange(func(user *backend.User) {
		if user == nil {
			reconciler.Stop()
			profiles.Reset()
			return
		}
		userID := user.ID
		go func() {
			reconciler.Start(ctx, userID)
			if err := profiles.Load(ctx, userID); err != nil {
				logger.Error("failed to load profile", "error", err)
			}
		}()
	})

	if configErr == nil {
		sessions.Bootstrap(ctx)
	}

	routes.SetDeps(routes.Deps{
		Config:    cfg,
		Session:   sessions,
		Chat:      reconciler,
		Profile:   profiles,
		State:     state,
		ConfigErr: configErr,
	})
	routes.Register(app)

	addr := ":" + cfg.Port
	logger.Info("starting server", "addr", addr)
	if err := app.Run(ctx, addr); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
