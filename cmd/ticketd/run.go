package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/geocoder89/tickethub/internal/auth"
	"github.com/geocoder89/tickethub/internal/config"
	"github.com/geocoder89/tickethub/internal/db"
	"github.com/geocoder89/tickethub/internal/guard"
	httpx "github.com/geocoder89/tickethub/internal/http"
	"github.com/geocoder89/tickethub/internal/http/handlers"
	"github.com/geocoder89/tickethub/internal/imagekit"
	"github.com/geocoder89/tickethub/internal/notifications"
	"github.com/geocoder89/tickethub/internal/observability"
	"github.com/geocoder89/tickethub/internal/pipeline"
	"github.com/geocoder89/tickethub/internal/repo/memory"
	"github.com/geocoder89/tickethub/internal/repo/postgres"
	"github.com/geocoder89/tickethub/internal/source"
	"github.com/geocoder89/tickethub/internal/source/sheets"
	"github.com/geocoder89/tickethub/internal/storage"
)

const adminTokenTTL = 12 * time.Hour

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the registration sheet and deliver tickets until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}
}

// registry is what both attendee repos offer the pipeline and the admin API.
type registry interface {
	pipeline.Registry
	handlers.AttendeeReader
}

func run(ctx context.Context, cfg config.Config) error {
	log := observability.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerOptions{
		ServiceName: "tickethub",
		Version:     version,
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)
	stats := observability.NewPipelineStats(prom)

	var checks []handlers.Check

	// templates and layout first: a bad template should fail before any network setup
	tmpl, err := loadTemplates(cfg)
	if err != nil {
		return err
	}
	layouts := newLayoutManager(cfg, tmpl, log)
	if err := resolveLayout(ctx, layouts, log); err != nil {
		return err
	}
	rd, err := newRenderDeps(cfg)
	if err != nil {
		return err
	}

	emailTmpl, err := notifications.LoadTemplate(cfg.EmailSubject, cfg.EmailBodyPath)
	if err != nil {
		return &config.ConfigError{Field: "EMAIL_MESSAGE_PATH", Reason: err.Error()}
	}

	src, err := sheets.New(ctx, sheets.Config{
		Link:            cfg.SheetLink,
		Sheet:           cfg.SheetName,
		CredentialsFile: cfg.GoogleCredsPath,
		Columns: source.ColumnMap{
			Timestamp:    cfg.Columns.Timestamp,
			Name:         cfg.Columns.Name,
			Email:        cfg.Columns.Email,
			TicketStatus: cfg.Columns.TicketStatus,
			EmailStatus:  cfg.Columns.EmailStatus,
			AttendeeID:   cfg.Columns.AttendeeID,
		},
	}, log)
	if err != nil {
		return fmt.Errorf("sheets source: %w", err)
	}

	sink, err := newSink(ctx, cfg)
	if err != nil {
		return err
	}

	mailer := newMailer(cfg, log)

	var (
		attendees  registry    = memory.NewAttendeesRepo()
		deliveries guard.Guard = guard.NewMemory()
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()

		repo := postgres.NewAttendeesRepo(pool, prom)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("db schema: %w", err)
		}
		attendees = repo
		checks = append(checks, handlers.Check{Name: "db", Ping: repo.Ping})

		dr := postgres.NewDeliveriesRepo(pool, prom, 0)
		if err := dr.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("db schema: %w", err)
		}
		deliveries = dr
	}

	// redis takes precedence over postgres for the send-once guard
	if cfg.RedisAddr != "" {
		rg := guard.NewRedis(guard.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rg.Close()
		if err := rg.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		deliveries = rg
		checks = append(checks, handlers.Check{Name: "redis", Ping: rg.Ping})
	}

	p := pipeline.New(pipeline.Config{
		PollInterval:     cfg.PollInterval,
		FetchRetries:     cfg.FetchRetries,
		EmailMaxAttempts: cfg.EmailMaxAttempts,
		TicketsFolder:    cfg.TicketsFolder,
		QRFolder:         cfg.QRFolder,
		Overflow:         pipeline.OverflowPolicy(cfg.OverflowPolicy),
		WriteAttendeeID:  cfg.Columns.AttendeeID != "",
	}, pipeline.Deps{
		Source:   src,
		Storage:  sink,
		Mailer:   mailer,
		Links:    rd.links,
		QR:       imagekit.NewQREncoder(),
		Renderer: rd.renderer,
		Layouts:  layouts.Holder(),
		Template: tmpl.blank,
		Email:    emailTmpl,
		Registry: attendees,
		Guard:    deliveries,
		Stats:    stats,
		Log:      log,
	})

	var serving atomic.Bool

	var tokens *auth.Manager
	if cfg.AdminSecret != "" {
		tokens = auth.NewManager(cfg.AdminSecret, adminTokenTTL)
	}

	router := httpx.NewRouter(httpx.RouterDeps{
		Env:          cfg.Env,
		Log:          log,
		Prom:         prom,
		Gatherer:     reg,
		Checks:       checks,
		Serving:      serving.Load,
		Tokens:       tokens,
		PasswordHash: cfg.AdminPasswordHash,
		Layouts:      layouts,
		Stats:        p,
		Preview:      p,
		Attendees:    attendees,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		log.Info("admin server starting", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin server failed", "err", err)
			cancel()
		}
	}()

	serving.Store(true)
	log.Info("pipeline starting", "poll_interval", cfg.PollInterval.String(), "storage", cfg.StorageBackend, "mail", cfg.MailBackend)

	runErr := p.Run(ctx)
	serving.Store(false)

	if runErr != nil {
		log.Error("pipeline stopped", "err", runErr)
	} else {
		log.Info("pipeline shutting down")
	}

	sctx, scancel := config.WithTimeout(10 * time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}

	log.Info("shutdown complete", "stats", p.Stats())
	return runErr
}

func newSink(ctx context.Context, cfg config.Config) (pipeline.Uploader, error) {
	switch cfg.StorageBackend {
	case "minio":
		return storage.NewMinIO(storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	case "local":
		return storage.NewLocal(cfg.LocalStorageRoot)
	default:
		return storage.NewDrive(ctx, cfg.GoogleCredsPath)
	}
}

func newMailer(cfg config.Config, log *slog.Logger) notifications.Mailer {
	var inner notifications.Mailer
	if cfg.MailBackend == "log" {
		inner = notifications.NewLogMailer(log)
	} else {
		inner = notifications.NewSMTPMailer(notifications.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SenderEmail,
			Password: cfg.SenderPassword,
		})
	}
	return notifications.NewProtectedMailer(inner, notifications.ProtectedMailerConfig{})
}
