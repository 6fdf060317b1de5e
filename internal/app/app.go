package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/momentschema/internal/adapters/events"
	"github.com/atvirokodosprendimai/momentschema/internal/adapters/httpapi"
	sqliteadapter "github.com/atvirokodosprendimai/momentschema/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/momentschema/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/momentschema/internal/core/ports"
	"github.com/atvirokodosprendimai/momentschema/internal/core/usecase"
	"github.com/atvirokodosprendimai/momentschema/internal/moment"
	"github.com/atvirokodosprendimai/momentschema/migrations"
)

type Config struct {
	Addr             string
	DBPath           string
	BootstrapAPIKey  string
	BootstrapTenant  string
	BootstrapKeyName string
	WebhookURL       string
	WebhookSecret    string
	WebhookTimeout   time.Duration
	DispatchInterval time.Duration
	RetryBudget      int

	// Location is the zone dates without an offset are read in. Nil means
	// the process local zone.
	Location  *time.Location
	WeekStart time.Weekday
}

// NewLibrary returns the date library every schema is compiled against.
func (c Config) NewLibrary() *moment.Library {
	opts := []moment.Option{moment.WithWeekStart(c.WeekStart)}
	if c.Location != nil {
		opts = append(opts, moment.WithLocation(c.Location))
	}
	return moment.NewLibrary(opts...)
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewServer(ctx context.Context, cfg Config) (*http.Server, io.Closer, error) {
	db, err := gormsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	schemaRepo := sqliteadapter.NewSchemaRepository(db)
	historyRepo := sqliteadapter.NewSchemaHistoryRepository(db)
	reportRepo := sqliteadapter.NewReportRepository(db)
	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)
	outboxRepo := sqliteadapter.NewOutboxRepository(db)

	schemaService := usecase.NewSchemaService(schemaRepo, cfg.NewLibrary())
	validationService := usecase.NewValidationService(schemaService, reportRepo)
	historyService := usecase.NewHistoryService(historyRepo)
	authService := usecase.NewAuthService(apiKeyRepo)

	if cfg.BootstrapAPIKey != "" {
		bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 5*time.Second)
		err := authService.Bootstrap(bootstrapCtx, cfg.BootstrapAPIKey, cfg.BootstrapTenant, cfg.BootstrapKeyName)
		bootstrapCancel()
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}

	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, newPublisher(cfg),
		usecase.WithDispatchInterval(cfg.DispatchInterval),
		usecase.WithRetryBudget(cfg.RetryBudget),
	)
	dispatcher.Start(context.Background())

	handler := httpapi.NewHandler(schemaService, validationService, historyService, authService)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, db}}, nil
}

func newPublisher(cfg Config) ports.EventPublisher {
	if cfg.WebhookURL == "" {
		return events.NewLogPublisher(log.Default())
	}
	return events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
}
