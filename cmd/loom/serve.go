package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/loomui/loom/internal/config"
	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/loom"
	"github.com/loomui/loom/pkg/remote"
)

func serveCmd() *cobra.Command {
	var (
		cfgPath string
		port    int
		host    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the built-in demo application",
		Long: `Serve the built-in demo application over the live protocol.

Loads loom.json (or loom.yaml) from the working directory and exposes:

  /loom/live   WebSocket endpoint for live sessions
  /metrics     Prometheus metrics
  /healthz     liveness probe

Examples:
  loom serve
  loom serve --port=9000
  loom serve --config=./deploy/loom.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath, host, port)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to config file (default loom.json/loom.yaml in cwd)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides config)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (overrides config)")

	return cmd
}

func runServe(cfgPath, host string, port int) error {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadFile(cfgPath)
	} else if config.Exists(".") {
		cfg, err = config.Load(".")
	} else {
		cfg = config.New()
	}
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Host = host
	}
	if port > 0 {
		cfg.Port = port
	}

	logger := newLogger(cfg.Log)

	store, cleanup, err := newStore(cfg.Store)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	srv := remote.NewServer(remote.Config{
		App:                demoApp,
		Logger:             logger,
		Store:              store,
		AllowedOrigins:     cfg.AllowedOrigins,
		MaxSessions:        cfg.Session.MaxSessions,
		MaxRetainedBatches: cfg.Session.MaxRetainedBatches,
		ResumeWindow:       cfg.Session.ResumeWindow.Std(),
		ReadTimeout:        cfg.Session.ReadTimeout.Std(),
		WriteTimeout:       cfg.Session.WriteTimeout.Std(),
		PingInterval:       cfg.Session.PingInterval.Std(),
	})

	httpSrv := &http.Server{
		Addr:    cfg.Address(),
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Address())
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	srv.Shutdown()
	return nil
}

func newLogger(lc config.LogConfig) *slog.Logger {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newStore builds the snapshot store named by the config. The returned
// cleanup closes resources the store does not own itself.
func newStore(sc config.StoreConfig) (remote.SnapshotStore, func(), error) {
	switch sc.Type {
	case config.StoreMemory, "":
		return remote.NewMemoryStore(), nil, nil

	case config.StoreSQL:
		db, err := sql.Open(sc.Driver, sc.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open store database: %w", err)
		}
		store := remote.NewSQLStore(db, remote.WithSQLDialect(sqlDialect(sc.Driver)))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Init(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init store schema: %w", err)
		}
		return store, func() { db.Close() }, nil

	case config.StoreS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(sc.Region))
		if err != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", err)
		}
		return remote.NewS3Store(s3.NewFromConfig(awsCfg), sc.Bucket, sc.Prefix), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown store type %q", sc.Type)
	}
}

func sqlDialect(driver string) remote.SQLDialect {
	switch {
	case strings.Contains(driver, "mysql"):
		return remote.DialectMySQL
	case strings.Contains(driver, "sqlite"):
		return remote.DialectSQLite
	default:
		return remote.DialectPostgres
	}
}

// demoApp is a small interactive tree used to smoke-test the wire
// protocol end to end: a counter, a text echo, and a server clock that
// exercises patches committed outside the event path.
func demoApp() *element.Element {
	app := func(c element.Context, _ element.Props) *element.Element {
		n, setN := loom.UseState(c, 0)
		text, setText := loom.UseState(c, "")
		now, setNow := loom.UseState(c, time.Now().Format(time.TimeOnly))

		loom.UseEffect(c, func() loom.Cleanup {
			ticker := time.NewTicker(time.Second)
			done := make(chan struct{})
			go func() {
				for {
					select {
					case t := <-ticker.C:
						setNow(t.Format(time.TimeOnly))
					case <-done:
						return
					}
				}
			}()
			return func() {
				ticker.Stop()
				close(done)
			}
		}, nil)

		return element.MustNew("div", element.Props{"class": "demo"},
			element.MustNew("h1", nil, element.Text("Loom demo")),
			element.MustNew("p", nil, element.Textf("server time %s", now)),
			element.MustNew("button", element.Props{
				"onClick": func() { setN(n + 1) },
			}, element.Textf("clicked %d times", n)),
			element.MustNew("input", element.Props{
				"value": text,
				"onInput": func(ev element.Props) {
					if v, ok := ev["value"].(string); ok {
						setText(v)
					}
				},
			}),
			element.MustNew("p", nil, element.Textf("you typed: %s", text)),
		)
	}
	return element.MustNew(app, nil)
}
