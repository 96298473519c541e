package main

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nasermirzaei89/env"
	"github.com/nasermirzaei89/marginalia/api"
	"github.com/nasermirzaei89/marginalia/authorization"
	"github.com/nasermirzaei89/marginalia/authorization/casbin"
	"github.com/nasermirzaei89/marginalia/comments"
	"github.com/nasermirzaei89/marginalia/contents"
	"github.com/nasermirzaei89/marginalia/db/sqlite3"
	"github.com/nasermirzaei89/marginalia/flags"
	"github.com/nasermirzaei89/marginalia/karma"
	"github.com/nasermirzaei89/marginalia/moderation"
	"github.com/nasermirzaei89/marginalia/notify"
	"github.com/nasermirzaei89/marginalia/random"
	"github.com/nasermirzaei89/marginalia/security"
	"github.com/nasermirzaei89/marginalia/server"
)

type App struct {
	server  *server.Server
	handler *api.Handler
	db      *sql.DB
}

//go:embed policy.csv
var defaultAuthorizationPolicyContent string

func NewApp(ctx context.Context) (*App, error) {
	db, err := sqlite3.NewDB(ctx, env.GetString("DB_DSN", "file::memory:?cache=shared"))
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	err = sqlite3.MigrateUp(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	commentRepo := sqlite3.NewCommentRepository(db)
	freeCommentRepo := sqlite3.NewFreeCommentRepository(db)
	karmaRepo := sqlite3.NewKarmaRepository(db)
	flagRepo := sqlite3.NewFlagRepository(db)
	deletionRepo := sqlite3.NewDeletionRepository(db)

	authzProvider, err := newAuthorizationProvider(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization provider: %w", err)
	}

	authzSvc, err := authorization.NewService(authzProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization service: %w", err)
	}

	authzClient := authorization.NewClient(authzSvc)

	moderatorsGroup := env.GetString("MODERATORS_GROUP", moderation.DefaultModeratorsGroup)
	if moderatorsGroup != moderation.DefaultModeratorsGroup {
		err = authzClient.Grant(ctx, moderatorsGroup, moderation.Object, "*", moderation.ActionModerate)
		if err != nil {
			return nil, fmt.Errorf("failed to grant moderation to %q: %w", moderatorsGroup, err)
		}
	}

	moderators := moderation.NewAuthorizer(authzClient)

	hasher := security.NewHasher(secretKey(ctx))

	commentsSvc := comments.NewService(commentRepo, freeCommentRepo, newResolver(), hasher, moderators)

	karmaSvc, err := karma.NewService(karmaRepo)
	if err != nil {
		return nil, fmt.Errorf("failed to create karma service: %w", err)
	}

	flagsSvc := flags.NewService(flagRepo, commentRepo, newNotifier())

	app := &App{
		server:  newServer(),
		handler: api.NewHandler(commentsSvc, karmaSvc, flagsSvc, deletionRepo, moderators, hasher),
		db:      db,
	}

	return app, nil
}

func (app *App) Run(ctx context.Context) error {
	// Handle SIGINT (CTRL+C) gracefully.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	defer func() {
		if app.db != nil {
			err := app.db.Close()
			if err != nil {
				slog.ErrorContext(ctx, "failed to close database", "error", err)
			}
		}
	}()

	err := app.server.Run(ctx, app.handler)
	if err != nil {
		return fmt.Errorf("failed to run server: %w", err)
	}

	return nil
}

func newServer() *server.Server {
	server := &server.Server{
		Port: env.GetString("PORT", server.DefaultPort),
		Host: env.GetString("HOST", ""),
		TLS: server.ServerTLS{
			Enabled: env.GetBool("TLS_ENABLED", false),
			Mode:    env.GetString("TLS_MODE", server.DefaultTLSMode),
			AutoCert: &server.ServerTLSAutoCert{
				CacheDir: env.GetString("TLS_AUTOCERT_CACHE_DIR", "./cert-cache"),
				Domains:  env.GetStringSlice("TLS_AUTOCERT_DOMAINS", []string{}),
				Email:    env.GetString("TLS_AUTOCERT_EMAIL", ""),
			},
			CertFile: env.GetString("TLS_CERT_FILE", ""),
			KeyFile:  env.GetString("TLS_KEY_FILE", ""),
		},
	}

	return server
}

// secretKey returns the key the form digests are bound to. Without
// SECRET_KEY set, a random per-process key is used; digests then stop
// verifying across restarts and replicas.
func secretKey(ctx context.Context) []byte {
	key := env.GetString("SECRET_KEY", "")
	if key == "" {
		slog.WarnContext(ctx, "SECRET_KEY not set, using a random per-process key")

		return random.Bytes(32)
	}

	return []byte(key)
}

func newResolver() comments.Resolver {
	baseURL := env.GetString("CONTENT_BASE_URL", "")
	if baseURL == "" {
		slog.Warn("CONTENT_BASE_URL not set, accepting all content references")

		return contents.NewPermissiveResolver()
	}

	return contents.NewHTTPResolver(baseURL)
}

func newNotifier() flags.Notifier {
	cfg := notify.SMTPConfig{
		Host:       env.GetString("SMTP_HOST", ""),
		Port:       env.GetString("SMTP_PORT", "25"),
		Username:   env.GetString("SMTP_USERNAME", ""),
		Password:   env.GetString("SMTP_PASSWORD", ""),
		From:       env.GetString("SMTP_FROM", ""),
		Moderators: env.GetStringSlice("MODERATOR_EMAILS", []string{}),
	}

	if !cfg.Enabled() {
		return notify.NopNotifier{}
	}

	return notify.NewSMTPNotifier(cfg)
}

func GetLogLevelFromEnv() slog.Level {
	levelStr := env.GetString("LOG_LEVEL", "info")
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, defaulting to info", "level", levelStr)

		return slog.LevelInfo
	}
}

func newAuthorizationProvider(db *sql.DB) (*casbin.AuthorizationProvider, error) {
	adapter, err := casbin.NewSQLAdapter(db, "sqlite3", "casbin_rule")
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization adapter: %w", err)
	}

	provider, err := casbin.NewAuthorizationProvider(adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization provider: %w", err)
	}

	policyContent, err := loadPolicyContent()
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization policy content: %w", err)
	}

	err = provider.AddPolicyFromCSV(policyContent)
	if err != nil {
		return nil, fmt.Errorf("failed to add authorization policy from csv: %w", err)
	}

	return provider, nil
}

func loadPolicyContent() (string, error) {
	policyFilePath := env.GetString("AUTHORIZATION_POLICY_FILE", "")

	if policyFilePath == "" {
		return defaultAuthorizationPolicyContent, nil
	}

	content, err := os.ReadFile(policyFilePath) // nolint:gosec
	if err != nil {
		return "", fmt.Errorf("failed to read policy file %q: %w", policyFilePath, err)
	}

	return string(content), nil
}
