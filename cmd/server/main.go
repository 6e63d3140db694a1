/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tuition service. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), apply flag overrides
  2. Build the zap logger
  3. Open the SQLite store
  4. Pick the per-student lock (Redis when REDIS_URL is set)
  5. Build the membership service, mailer and reminder policy
  6. Start the reminder scheduler when automatic reminders are enabled
  7. Serve HTTP with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database
  -demo    Mount POST /api/demo/load

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight run)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Redis and the database

EXAMPLES:
  ./server -db="./data/tuition.db"
  ./server -db=":memory:" -demo
  TIMEZONE=UTC ENABLE_AUTOMATIC_REMINDERS=false ./server -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/tuition-engine/api"
	"github.com/warp/tuition-engine/config"
	"github.com/warp/tuition-engine/membership"
	"github.com/warp/tuition-engine/notify"
	"github.com/warp/tuition-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	demo := flag.Bool("demo", cfg.Development(), "Enable the demo data endpoint")
	flag.Parse()

	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []membership.Option{
		membership.WithLogger(log),
		membership.WithLocation(loc),
	}

	if cfg.RedisURL != "" {
		client, err := membership.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, membership.WithLocker(membership.NewRedisLocker(client, "tuition:lock:", 0, log)))
		log.Info("using redis student lock")
	}

	// Reminders and receipts
	var (
		sender notify.Sender = notify.NewLogSender(log)
		mailer *notify.Mailer
	)
	if cfg.EmailEnabled {
		if cfg.SMTP.Configured() {
			mailer = notify.NewMailer(cfg.SMTP, loc, log)
			sender = mailer
			opts = append(opts, membership.OnPaymentRecorded(mailer.ReceiptHook()))
		} else {
			log.Warn("email notifications enabled but SMTP is not configured, logging reminders instead")
		}
	}

	svc := membership.NewService(store, opts...)
	policy := notify.NewPolicy(svc, sender, log)

	scheduler, err := api.NewReminderScheduler(policy, store, loc, cfg.ReminderRule, log)
	if err != nil {
		return err
	}
	if cfg.RemindersEnabled {
		scheduler.Start(ctx)
	}

	handler := api.NewHandler(svc, scheduler, store, log)
	handler.RemindersEnabled = cfg.RemindersEnabled
	if mailer != nil {
		handler.Mail = mailer
	}

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		EnableDemo:     *demo,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.Int("port", *port),
			zap.String("db", *dbPath),
			zap.String("timezone", loc.String()),
			zap.Bool("email", cfg.EmailEnabled && cfg.SMTP.Configured()),
			zap.Bool("reminders", cfg.RemindersEnabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			scheduler.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := drain(shutdownCtx, scheduler, server); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}

type stopper interface{ Stop() }

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// drain stops the scheduler, waiting for an in-flight run, and only then
// shuts the HTTP server down. Stop is a no-op when the loop never started.
func drain(ctx context.Context, scheduler stopper, server shutdowner) error {
	scheduler.Stop()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
