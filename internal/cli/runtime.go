package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"signoff/api/internal/approval"
	"signoff/api/internal/blob"
	"signoff/api/internal/bridge"
	"signoff/api/internal/clock"
	"signoff/api/internal/config"
	"signoff/api/internal/events"
	"signoff/api/internal/notify"
	"signoff/api/internal/render"
	"signoff/api/internal/store"
	"signoff/api/internal/version"
)

// Parts are the infrastructure pieces a Runtime is assembled from.
type Parts struct {
	Store    store.Store
	Renderer version.Renderer
	Blobs    version.BlobStore
	Deduper  events.Deduper
	Notifier notify.Notifier
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Runtime is the fully wired engine.
type Runtime struct {
	Config      config.Config
	Store       store.Store
	Bus         *events.Bus
	Versions    *version.Manager
	Tracker     *approval.TeamTracker
	Coordinator *approval.Coordinator
	Bridge      *bridge.Bridge
	Logger      *slog.Logger

	closers []func() error
}

// Assemble wires the services on top of p and subscribes the bridge to
// version status changes.
func Assemble(cfg config.Config, p Parts) (*Runtime, error) {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Clock == nil {
		p.Clock = clock.System{}
	}
	if p.Notifier == nil {
		p.Notifier = notify.NewLogNotifier(p.Logger)
	}

	bus := events.NewBus(p.Deduper, p.Logger)
	versions := version.NewManager(version.Deps{
		Store:        p.Store,
		Renderer:     p.Renderer,
		Blobs:        p.Blobs,
		Publisher:    bus,
		Notifier:     p.Notifier,
		Clock:        p.Clock,
		Logger:       p.Logger,
		HistoryLimit: cfg.VersionHistoryLimit,
	})
	tracker := approval.NewTeamTracker(p.Store, p.Notifier, p.Clock, p.Logger)
	coordinator := approval.NewCoordinator(p.Store, tracker, approval.Options{
		Notifier:                       p.Notifier,
		Clock:                          p.Clock,
		Logger:                         p.Logger,
		AppURL:                         cfg.AppURL,
		TeamRejectionCompletesWorkflow: cfg.TeamRejectionCompletesWorkflow,
	})
	br := bridge.New(bridge.Deps{
		Store:     p.Store,
		Versions:  versions,
		Workflows: coordinator,
		Claimer:   bus,
		Clock:     p.Clock,
		Logger:    p.Logger,
		Config: bridge.Config{
			AppURL:                cfg.AppURL,
			FreezeOnFinalApproval: cfg.FreezeOnFinalApproval,
		},
	})
	coordinator.SetStatusSyncer(br)
	if err := bus.Subscribe(br.HandleVersionStatusChanged); err != nil {
		return nil, err
	}

	return &Runtime{
		Config:      cfg,
		Store:       p.Store,
		Bus:         bus,
		Versions:    versions,
		Tracker:     tracker,
		Coordinator: coordinator,
		Bridge:      br,
		Logger:      p.Logger,
	}, nil
}

// Open connects to Postgres, Redis, MinIO and Chrome as configured and
// assembles a Runtime. Redis and MinIO fall back to in-process stand-ins when
// unset.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	var closers []func() error
	fail := func(err error) (*Runtime, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("database connection failed: %w", err))
	}
	closers = append(closers, db.Close)

	var deduper events.Deduper
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for status change de-duplication")
		redisDeduper, err := events.NewRedisDeduper(ctx, cfg.RedisURL, cfg.DedupeTTL)
		if err != nil {
			return fail(fmt.Errorf("redis connection failed: %w", err))
		}
		closers = append(closers, redisDeduper.Close)
		deduper = redisDeduper
	} else {
		deduper = events.NewMemoryDeduper(cfg.DedupeTTL)
	}

	var blobs version.BlobStore
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := blob.NewMinioStore(blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			return fail(err)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			return fail(err)
		}
		blobs = minioStore
	} else {
		logger.Warn("MINIO_ENDPOINT not set, rendered files are kept in memory")
		blobs = blob.NewMemoryStore(cfg.AppURL + "/files")
	}

	renderer := render.NewChromeRenderer(cfg.RenderTimeout, logger)
	if !renderer.Available() {
		logger.Warn("chrome not found, version rendering will fail")
	}

	var notifier notify.Notifier
	email := notify.NewEmailNotifier(notify.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, logger)
	if email.IsConfigured() {
		notifier = email
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	rt, err := Assemble(cfg, Parts{
		Store:    store.NewPostgresStore(db),
		Renderer: renderer,
		Blobs:    blobs,
		Deduper:  deduper,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		return fail(err)
	}
	rt.closers = closers
	return rt, nil
}

func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
