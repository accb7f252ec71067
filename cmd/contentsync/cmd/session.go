package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dbsmedya/contentsync/internal/backend"
	"github.com/dbsmedya/contentsync/internal/config"
	"github.com/dbsmedya/contentsync/internal/content"
	"github.com/dbsmedya/contentsync/internal/database"
	"github.com/dbsmedya/contentsync/internal/history"
	"github.com/dbsmedya/contentsync/internal/lock"
	"github.com/dbsmedya/contentsync/internal/logger"
	"github.com/dbsmedya/contentsync/internal/reconciler"
)

// newStore builds the backend client; tests replace it with an in-memory store.
var newStore = func(cfg *config.Config, log *logger.Logger) (backend.Store, error) {
	return backend.NewHTTPStore(&cfg.Backend, log)
}

// session holds what a command needs to talk to both sides.
type session struct {
	cfg     *config.Config
	log     *logger.Logger
	source  content.Source
	store   backend.Store
	db      *database.Manager
	journal *history.Journal
}

// newSession loads configuration and builds the collaborators. The history
// database is connected only when withHistory is set and history is enabled.
func newSession(ctx context.Context, withHistory bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := newStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	s := &session{
		cfg:    cfg,
		log:    log,
		source: content.NewFileSource(cfg.Frontend.ContentDir, cfg.Frontend.SchemaValidation),
		store:  store,
	}

	if withHistory && cfg.History.Enabled {
		if err := s.connectHistory(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *session) connectHistory(ctx context.Context) error {
	dbManager, err := database.NewManager(&s.cfg.History)
	if err != nil {
		return err
	}
	if err := dbManager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to history database: %w", err)
	}

	journal, err := history.NewJournal(dbManager.DB, s.cfg.History.TablePrefix, s.log)
	if err != nil {
		dbManager.Close()
		return err
	}
	if err := journal.InitializeTables(ctx); err != nil {
		dbManager.Close()
		return err
	}

	s.db = dbManager
	s.journal = journal
	s.log.Infow("History journal enabled", "database", s.cfg.History.Database)
	return nil
}

func (s *session) historyDB() *sql.DB {
	if s.db == nil {
		return nil
	}
	return s.db.DB
}

// collectionLock is an advisory lock when the history database is connected and
// an in-process lock otherwise.
func (s *session) collectionLock(collection string) lock.Locker {
	return lock.NewCollectionLock(s.historyDB(), collection)
}

func (s *session) orchestrator(collection string) (*reconciler.Orchestrator, error) {
	return reconciler.NewOrchestrator(s.cfg, collection, s.source, s.store, s.log)
}

func (s *session) close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warnw("Failed to close history database", "error", err)
		}
	}
	_ = s.log.Sync()
}

// setupSignalHandler returns a context cancelled on SIGINT or SIGTERM. A running
// batch stops before its next item; items not attempted are reported as failed.
func setupSignalHandler(log *logger.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Warnw("Received shutdown signal - stopping after the current item", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
