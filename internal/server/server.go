// Package server assembles the satmond daemon.
//
// The server owns every long-lived component: the telemetry journal, the
// catalog metastore, the manager, the live feed, the MQTT subscriber, the
// Parquet archive and the HTTP listener. New restores state from disk;
// Run serves until its context is cancelled and then shuts down in reverse
// start order.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/xtxerr/satmon/config"
	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/generator"
	"github.com/xtxerr/satmon/internal/handler"
	"github.com/xtxerr/satmon/internal/ingest"
	"github.com/xtxerr/satmon/internal/loader"
	"github.com/xtxerr/satmon/internal/logging"
	"github.com/xtxerr/satmon/internal/manager"
	"github.com/xtxerr/satmon/internal/query"
	"github.com/xtxerr/satmon/internal/scheduler"
	"github.com/xtxerr/satmon/internal/storage/archive"
	"github.com/xtxerr/satmon/internal/storage/series"
	"github.com/xtxerr/satmon/internal/storage/types"
	"github.com/xtxerr/satmon/internal/storage/wal"
	"github.com/xtxerr/satmon/internal/store"
)

var log = logging.Component("server")

// =============================================================================
// Server
// =============================================================================

// Server is the satmond daemon.
type Server struct {
	cfg *loader.Config

	meta    *store.Store
	journal *wal.Writer
	mgr     *manager.Manager
	gen     *generator.Generator
	engine  *query.Engine
	archive *archive.Archive
	feed    *scheduler.Feed
	mqtt    *ingest.Subscriber

	routes http.Handler
	http   *http.Server

	mu       sync.Mutex
	listener net.Listener

	stopRetention chan struct{}
	retentionDone sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New opens storage, restores the catalog and telemetry, and seeds the
// configured catalog. Nothing is started; see Run.
func New(cfg *loader.Config) (s *Server, err error) {
	if err := loader.Validate(cfg); err != nil {
		return nil, err
	}

	s = &Server{cfg: cfg}
	defer func() {
		if err != nil {
			s.Close()
			s = nil
		}
	}()

	var mgrOpts []manager.Option
	snap := &store.Catalog{}
	if cfg.Storage.Metastore.Enabled {
		if s.meta, err = store.New(cfg.StoreConfig()); err != nil {
			return s, fmt.Errorf("open metastore: %w", err)
		}
		if snap, err = s.meta.LoadCatalog(); err != nil {
			return s, fmt.Errorf("load catalog: %w", err)
		}
		mgrOpts = append(mgrOpts, manager.WithPersister(s.meta))
	}

	var seriesOpts []series.Option
	if cfg.Storage.Journal.Enabled {
		if s.journal, err = wal.NewWriter(cfg.JournalDir(), cfg.WALOptions()); err != nil {
			return s, fmt.Errorf("open journal: %w", err)
		}
		seriesOpts = append(seriesOpts, series.WithJournal(s.journal))
	}

	s.mgr = manager.New(series.New(seriesOpts...), mgrOpts...)
	if err = s.mgr.Load(snap); err != nil {
		return s, fmt.Errorf("load catalog: %w", err)
	}

	if cfg.Storage.Journal.Enabled {
		if err = s.replay(); err != nil {
			return s, err
		}
	}

	res, err := loader.Apply(cfg, s.mgr)
	if err != nil {
		return s, err
	}
	if res.SatellitesCreated+res.UnitsCreated+res.ParametersCreated > 0 {
		log.Info("catalog seeded",
			"satellites", res.SatellitesCreated,
			"activated", res.SatellitesActivated,
			"units", res.UnitsCreated,
			"parameters", res.ParametersCreated)
	}

	s.gen = generator.New(cfg.GeneratorConfig())
	s.engine = query.New(s.mgr, s.mgr.Series(), query.WithIngestStats(s.mgr.Stats()))

	if cfg.ArchiveDir() != "" {
		if s.archive, err = archive.New(cfg.ArchiveDir(), archive.WithOptions(cfg.ParquetOptions())); err != nil {
			return s, fmt.Errorf("open archive: %w", err)
		}
	}

	if cfg.Generator.Live.Enabled {
		s.feed = scheduler.NewFeed(s.mgr, s.gen, cfg.FeedConfig())
	}
	if cfg.MQTT.Enabled {
		s.mqtt = ingest.NewSubscriber(cfg.IngestConfig(), s.mgr)
	}

	deps := handler.Deps{
		Manager:        s.mgr,
		Engine:         s.engine,
		Generator:      s.gen,
		Archive:        s.archive,
		RequestTimeout: cfg.HTTP.RequestTimeout.Duration(),
	}
	if s.meta != nil {
		deps.Metastore = s.meta
	}
	s.routes = handler.New(deps).Routes()

	s.http = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.routes,
		ReadTimeout:  cfg.HTTP.ReadTimeout.Duration(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Duration(),
		IdleTimeout:  cfg.HTTP.IdleTimeout.Duration(),
	}

	return s, nil
}

// replay restores journaled telemetry into the series store.
func (s *Server) replay() error {
	st := s.mgr.Series()
	skipped := 0
	stats, err := wal.Replay(s.cfg.JournalDir(), func(points []types.DataPoint) error {
		skipped += st.Restore(points)
		return nil
	})
	if err != nil {
		return fmt.Errorf("replay journal: %w: %w", errors.ErrJournal, err)
	}

	log.Info("journal replayed",
		"records", stats.RecordsRead,
		"points", stats.PointsRead,
		"skipped", skipped,
		"corrupt_records", stats.CorruptRecords)
	return nil
}

// Handler returns the HTTP API.
func (s *Server) Handler() http.Handler {
	return s.routes
}

// Manager returns the catalog and ingest manager.
func (s *Server) Manager() *manager.Manager {
	return s.mgr
}

// Addr returns the bound listen address once Run is serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Backfill fills the generator's default window for every parameter of
// every active satellite.
func (s *Server) Backfill(ctx context.Context) (*generator.BackfillResult, error) {
	params := s.mgr.ActiveParameters()
	res, err := generator.Backfill(ctx, s.gen, s.mgr, params, s.gen.DefaultWindow(), s.gen.Config().Workers)
	if err != nil {
		return nil, err
	}
	log.Info("backfill complete",
		"parameters", res.Parameters,
		"points", res.Points,
		"skipped", res.Skipped,
		"duration", res.Duration)
	return res, nil
}

// Run starts the background components and serves HTTP until ctx is
// cancelled, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Generator.BackfillOnStart {
		if _, err := s.Backfill(ctx); err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	if s.feed != nil {
		s.feed.Start()
	}
	if keep := s.cfg.Storage.ArchiveRetention.Duration(); s.archive != nil && keep > 0 {
		s.stopRetention = make(chan struct{})
		s.retentionDone.Add(1)
		go s.retentionLoop(keep, config.DefaultRetentionCheckInterval)
	}
	if s.mqtt != nil {
		// A broker that is down at startup is not fatal.
		if err := s.mqtt.Start(); err != nil {
			log.Warn("mqtt subscriber not connected", "error", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "address", ln.Addr().String())
		serveErr <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.stop()
			s.Close()
			return fmt.Errorf("serve: %w", err)
		}
	}

	return s.Shutdown()
}

// Shutdown stops the HTTP listener, drains in-flight requests and background
// work, and releases storage.
func (s *Server) Shutdown() error {
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultDrainTimeoutSec*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	s.stopWithContext(ctx)

	err := s.Close()
	log.Info("shutdown complete")
	return err
}

func (s *Server) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultDrainTimeoutSec*time.Second)
	defer cancel()
	s.stopWithContext(ctx)
}

func (s *Server) stopWithContext(ctx context.Context) {
	if s.mqtt != nil {
		s.mqtt.Stop()
	}
	if s.stopRetention != nil {
		close(s.stopRetention)
		s.retentionDone.Wait()
		s.stopRetention = nil
	}
	if s.feed != nil {
		s.feed.Stop(ctx)
	}
}

// retentionLoop prunes the archive once at start and then every interval.
func (s *Server) retentionLoop(keep, interval time.Duration) {
	defer s.retentionDone.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.archive.Prune(keep, false); err != nil {
			log.Error("archive retention failed", "error", err)
		}
		select {
		case <-ticker.C:
		case <-s.stopRetention:
			return
		}
	}
}

// Close releases storage. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.archive != nil {
			errs = append(errs, s.archive.Close())
		}
		if s.journal != nil {
			errs = append(errs, s.journal.Close())
		}
		if s.meta != nil {
			errs = append(errs, s.meta.Close())
		}
		s.closeErr = stderrors.Join(errs...)
	})
	return s.closeErr
}
