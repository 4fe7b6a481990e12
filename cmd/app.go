package cmd

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/hhbot/internal/cache"
	"github.com/example/hhbot/internal/config"
	"github.com/example/hhbot/internal/crypto"
	"github.com/example/hhbot/internal/db"
	"github.com/example/hhbot/internal/headhunter"
	"github.com/example/hhbot/internal/logging"
	"github.com/example/hhbot/internal/migrate"
	"github.com/example/hhbot/internal/runs"
	"github.com/example/hhbot/internal/settings"
)

const settingsCachePrefix = "hhbot:settings:"

// app holds the resources every command shares.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	settings *settings.Store
	runs     runs.Repository

	closers []func()
}

func loadConfig(opts *rootOptions) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	log, err := logging.New(cfg.LogLevel, cfg.DevMode)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

// openApp loads configuration and opens storage and the settings cache.
// With migrateUp set, Postgres migrations run before anything else.
func openApp(ctx context.Context, opts *rootOptions, migrateUp bool) (*app, error) {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	repo, err := a.openRepo(ctx, migrateUp)
	if err != nil {
		a.Close()
		return nil, err
	}

	var c cache.Cache[settings.Settings]
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		c = cache.NewRedis[settings.Settings](client, settingsCachePrefix, cfg.CacheTTL, log.Named("cache"))
		log.Info("settings cache", zap.String("backend", "redis"))
	} else {
		c = cache.NewMemory[settings.Settings](cfg.CacheTTL)
		log.Info("settings cache", zap.String("backend", "memory"))
	}
	a.closers = append(a.closers, func() { _ = c.Close() })

	a.settings = settings.NewStore(repo, c)
	return a, nil
}

func (a *app) openRepo(ctx context.Context, migrateUp bool) (settings.Repository, error) {
	switch a.cfg.StorageDriver {
	case "sqlite":
		repo, err := settings.OpenSQLite(a.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = repo.Close() })
		if a.runs, err = runs.NewSQLiteRepo(ctx, repo.DB()); err != nil {
			return nil, err
		}
		a.log.Info("storage", zap.String("driver", "sqlite"), zap.String("path", a.cfg.SQLitePath))
		return repo, nil
	default:
		d, err := a.openDB(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, d.Close)
		if migrateUp {
			if _, err := migrate.Up(ctx, d, a.log.Named("migrate")); err != nil {
				return nil, err
			}
		}
		a.log.Info("storage", zap.String("driver", "postgres"))
		a.runs = runs.NewPostgresRepo(d)
		return settings.NewPostgresRepo(d), nil
	}
}

func (a *app) openDB(ctx context.Context) (*db.DB, error) {
	return db.Open(ctx, a.cfg.DatabaseURL, db.Options{
		MaxConns: int32(a.cfg.DBMaxConns),
		Logger:   a.log.Named("db"),
	})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) sealer() (*crypto.Sealer, error) {
	if err := a.cfg.RequireEncryption(); err != nil {
		return nil, err
	}
	return crypto.New(a.cfg.EncryptionKey)
}

func (a *app) hhClient(accessToken string) *headhunter.Client {
	return headhunter.New(accessToken, headhunter.Options{
		BaseURL:   a.cfg.HH.APIURL,
		UserAgent: a.cfg.HH.UserAgent,
		Timeout:   a.cfg.HH.RequestTimeout,
		Logger:    a.log,
	})
}

func (a *app) oauth() *headhunter.OAuth {
	return &headhunter.OAuth{
		AuthURL:      a.cfg.HH.AuthURL,
		TokenURL:     a.cfg.HH.TokenURL,
		ClientID:     a.cfg.HH.ClientID,
		ClientSecret: a.cfg.HH.ClientSecret,
		RedirectURI:  a.cfg.HH.RedirectURI,
		UserAgent:    a.cfg.HH.UserAgent,
		HTTPClient:   &http.Client{Timeout: a.cfg.HH.RequestTimeout},
	}
}

// openToken loads a chat's settings and decrypts its access token.
func (a *app) openToken(ctx context.Context, chatID int64) (settings.Settings, string, error) {
	s, err := a.settings.Get(ctx, chatID)
	if err != nil {
		return settings.Settings{}, "", err
	}
	if !s.Authorized() {
		return s, "", fmt.Errorf("chat %d has not authorized with hh", chatID)
	}
	sealer, err := a.sealer()
	if err != nil {
		return s, "", err
	}
	token, err := sealer.Open(s.AuthToken)
	if err != nil {
		return s, "", fmt.Errorf("open token: %w", err)
	}
	return s, token, nil
}
