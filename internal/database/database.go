// Package database manages the optional MySQL connection that backs the sync
// history journal and the cross-process collection lock.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dbsmedya/contentsync/internal/config"
)

// Manager owns the history database handle.
type Manager struct {
	DB      *sql.DB
	config  *config.HistoryConfig
	retries int
	backoff time.Duration
}

// NewManager creates a manager. Connect must be called before DB is used.
func NewManager(cfg *config.HistoryConfig) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("history config is nil")
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("history database is disabled")
	}
	return &Manager{config: cfg, retries: 3, backoff: time.Second}, nil
}

// Connect opens and pings the database, retrying with exponential backoff.
func (m *Manager) Connect(ctx context.Context) error {
	var lastErr error
	backoff := m.backoff

	for attempt := 1; attempt <= m.retries; attempt++ {
		db, err := sql.Open("mysql", BuildDSN(m.config))
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				m.configurePool(db)
				m.DB = db
				return nil
			}
			db.Close()
		}
		lastErr = err

		if attempt < m.retries {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
				backoff *= 2
			}
		}
	}
	return fmt.Errorf("failed to connect to history database after %d attempts: %w", m.retries, lastErr)
}

func (m *Manager) configurePool(db *sql.DB) {
	if m.config.MaxConnections > 0 {
		db.SetMaxOpenConns(m.config.MaxConnections)
	}
	if m.config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(m.config.MaxIdleConnections)
	}
	db.SetConnMaxLifetime(10 * time.Minute)
}

// BuildDSN renders the driver DSN for the history database.
func BuildDSN(cfg *config.HistoryConfig) string {
	dsn := mysql.NewConfig()
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dsn.DBName = cfg.Database
	dsn.ParseTime = true

	switch cfg.TLS {
	case "disable":
		dsn.TLSConfig = "false"
	case "required":
		dsn.TLSConfig = "true"
	default:
		dsn.TLSConfig = "preferred"
	}
	return dsn.FormatDSN()
}

// Ping verifies the connection is alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.DB == nil {
		return fmt.Errorf("history database not connected")
	}
	if err := m.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("history ping failed: %w", err)
	}
	return nil
}

// Close closes the connection if one is open.
func (m *Manager) Close() error {
	if m.DB == nil {
		return nil
	}
	if err := m.DB.Close(); err != nil {
		return fmt.Errorf("history close: %w", err)
	}
	m.DB = nil
	return nil
}
