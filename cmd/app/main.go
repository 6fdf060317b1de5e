package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/momentschema/internal/app"
	"github.com/atvirokodosprendimai/momentschema/internal/moment"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func dateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "timezone",
			Value:   "Local",
			Sources: cli.EnvVars("MOMENTSCHEMA_TIMEZONE"),
			Usage:   "IANA zone for dates without an offset",
		},
		&cli.StringFlag{
			Name:    "week-start",
			Value:   "sunday",
			Sources: cli.EnvVars("MOMENTSCHEMA_WEEK_START"),
			Usage:   "First day of the week unit",
		},
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "momentschema",
		Usage: "JSON Schema validation with date comparison rules",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Flags:  append(serveFlags(), dateFlags()...),
				Action: serve,
			},
			{
				Name:      "check",
				Usage:     "Validate JSON documents against a schema file",
				ArgsUsage: "DOCUMENT...",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "schema",
						Required: true,
						Usage:    "Path to the JSON schema",
					},
				}, dateFlags()...),
				Action: func(ctx context.Context, c *cli.Command) error {
					lib, err := libraryFromFlags(c)
					if err != nil {
						return err
					}
					ok, err := runCheck(ctx, lib, c.String("schema"), c.Args().Slice(), c.Root().Writer)
					if err != nil {
						return err
					}
					if !ok {
						return cli.Exit("", 1)
					}
					return nil
				},
			},
			{
				Name:  "catalog",
				Usage: "List the supported tests and manipulations",
				Action: func(_ context.Context, c *cli.Command) error {
					printCatalog(c.Root().Writer)
					return nil
				},
			},
		},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Value:   ":8080",
			Sources: cli.EnvVars("MOMENTSCHEMA_ADDR"),
			Usage:   "HTTP listen address",
		},
		&cli.StringFlag{
			Name:    "db-path",
			Value:   "./momentschema.sqlite",
			Sources: cli.EnvVars("MOMENTSCHEMA_DB_PATH"),
			Usage:   "SQLite file path",
		},
		&cli.StringFlag{
			Name:    "bootstrap-api-key",
			Sources: cli.EnvVars("MOMENTSCHEMA_BOOTSTRAP_API_KEY"),
			Usage:   "Optional API key to upsert at startup",
		},
		&cli.StringFlag{
			Name:    "bootstrap-tenant",
			Value:   "default",
			Sources: cli.EnvVars("MOMENTSCHEMA_BOOTSTRAP_TENANT"),
			Usage:   "Tenant for bootstrap API key",
		},
		&cli.StringFlag{
			Name:    "bootstrap-key-name",
			Value:   "bootstrap",
			Sources: cli.EnvVars("MOMENTSCHEMA_BOOTSTRAP_KEY_NAME"),
			Usage:   "Name for bootstrap API key",
		},
		&cli.StringFlag{
			Name:    "webhook-url",
			Sources: cli.EnvVars("MOMENTSCHEMA_WEBHOOK_URL"),
			Usage:   "Receiver for schema and rejection events; events are logged when empty",
		},
		&cli.StringFlag{
			Name:    "webhook-secret",
			Sources: cli.EnvVars("MOMENTSCHEMA_WEBHOOK_SECRET"),
			Usage:   "HMAC-SHA256 signing secret for webhook requests",
		},
		&cli.DurationFlag{
			Name:    "webhook-timeout",
			Value:   10 * time.Second,
			Sources: cli.EnvVars("MOMENTSCHEMA_WEBHOOK_TIMEOUT"),
			Usage:   "Timeout for one webhook request",
		},
		&cli.DurationFlag{
			Name:    "dispatch-interval",
			Value:   2 * time.Second,
			Sources: cli.EnvVars("MOMENTSCHEMA_DISPATCH_INTERVAL"),
			Usage:   "How often pending events are delivered",
		},
		&cli.IntFlag{
			Name:    "retry-budget",
			Value:   5,
			Sources: cli.EnvVars("MOMENTSCHEMA_RETRY_BUDGET"),
			Usage:   "Delivery attempts before an event is dead-lettered",
		},
	}
}

func serve(ctx context.Context, c *cli.Command) error {
	loc, err := parseLocation(c.String("timezone"))
	if err != nil {
		return err
	}
	weekStart, err := parseWeekday(c.String("week-start"))
	if err != nil {
		return err
	}

	cfg := app.Config{
		Addr:             c.String("addr"),
		DBPath:           c.String("db-path"),
		BootstrapAPIKey:  c.String("bootstrap-api-key"),
		BootstrapTenant:  c.String("bootstrap-tenant"),
		BootstrapKeyName: c.String("bootstrap-key-name"),
		WebhookURL:       c.String("webhook-url"),
		WebhookSecret:    c.String("webhook-secret"),
		WebhookTimeout:   c.Duration("webhook-timeout"),
		DispatchInterval: c.Duration("dispatch-interval"),
		RetryBudget:      int(c.Int("retry-budget")),
		Location:         loc,
		WeekStart:        weekStart,
	}

	server, closer, err := app.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			log.Printf("close resources: %v", closeErr)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s (timezone=%s week_start=%s)", cfg.Addr, loc, weekStart)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case sig := <-sigCh:
		log.Printf("received signal %s", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func libraryFromFlags(c *cli.Command) (*moment.Library, error) {
	loc, err := parseLocation(c.String("timezone"))
	if err != nil {
		return nil, err
	}
	weekStart, err := parseWeekday(c.String("week-start"))
	if err != nil {
		return nil, err
	}
	return app.Config{Location: loc, WeekStart: weekStart}.NewLibrary(), nil
}
