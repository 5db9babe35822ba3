// Package app wires configuration, persistence, transport and the session
// layer into a runnable chat client.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/config"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/session"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/store"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/store/sqlite"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/transport/socket"
)

// App owns the long-lived pieces of the client.
type App struct {
	sessions *session.SessionStore
	records  store.RecordStore
	dbClose  func() error
	log      *zerolog.Logger
}

// New constructs the application with the provided configuration. An empty
// StatePath selects the in-memory record store, which forgets the session on
// exit.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	var (
		records store.RecordStore
		dbClose func() error
	)
	if cfg.StatePath == "" {
		records = store.NewMemory()
		logger.Info().Msg("using in-memory session records")
	} else {
		db, err := sqlite.New(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("init record store: %w", err)
		}
		records = db
		dbClose = db.Close
		logger.Info().Str("state_path", cfg.StatePath).Msg("record store initialized")
	}

	dialer := socket.NewDialer(cfg.ServerURL, logger)
	sessions := session.New(dialer, records, logger, session.Options{
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		MaxAutoJoinAttempts:  cfg.MaxAutoJoinAttempts,
		TypingDebounce:       cfg.TypingDebounce,
		AutoJoinGraceDelay:   cfg.AutoJoinGraceDelay,
	})

	return &App{
		sessions: sessions,
		records:  records,
		dbClose:  dbClose,
		log:      logger,
	}, nil
}

// Sessions exposes the session store to the UI layer.
func (a *App) Sessions() *session.SessionStore {
	return a.sessions
}

// Start connects to the chat server and resumes any persisted session.
func (a *App) Start(ctx context.Context) error {
	return a.sessions.Start(ctx)
}

// Close tears down the session layer and releases persistence resources.
func (a *App) Close() {
	a.sessions.Close()
	if a.dbClose != nil {
		if err := a.dbClose(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close record store")
		}
	}
}
