package commands

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/edudati/openheal-research/config"
	"github.com/edudati/openheal-research/db"
)

const (
	localConnectTimeout  = 5 * time.Second
	sourceConnectTimeout = 5 * time.Second
)

// app holds what every command needs: configuration, logger and the
// database handles it opened.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	local  *sql.DB
	source *sql.DB
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// newLogger настраивает JSON-логгер, как в сервисе.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// openApp loads the configuration and connects to the local store and,
// when withSource is set, to OpenHeal.
func openApp(opts *RootOptions, logOut io.Writer, withSource bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level := cfg.LogLevel
	if opts != nil && opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := newLogger(logOut, level)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.local, err = db.Connect(cfg.DatabaseURL, localConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("database connection established")

	if withSource {
		a.source, err = db.ConnectReadOnly(cfg.OpenHealDatabaseURL, cfg.OpenHealTimeout, sourceConnectTimeout)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to OpenHeal database: %w", err)
		}
		logger.Info("OpenHeal connection established", slog.Duration("statement_timeout", cfg.OpenHealTimeout))
	}
	return a, nil
}

func (a *app) Close() {
	for name, conn := range map[string]*sql.DB{"database": a.local, "OpenHeal": a.source} {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil {
			a.logger.Error("failed to close connection", slog.String("db", name), slog.Any("error", err))
		}
	}
}
