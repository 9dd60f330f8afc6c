// Package config provides configuration defaults and utilities
// for the satmon application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: listen
	DefaultListenAddress = "0.0.0.0:8080"

	// DefaultReadTimeout bounds reading a full request.
	// Override via config: http.read_timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout bounds writing a response.
	// Override via config: http.write_timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the keep-alive idle timeout.
	// Override via config: http.idle_timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultRequestTimeout is applied to every request context.
	// Override via config: http.request_timeout
	DefaultRequestTimeout = 60 * time.Second

	// DefaultMaxBodyBytes limits request bodies (telemetry ingest batches).
	DefaultMaxBodyBytes = 8 * 1024 * 1024
)

// =============================================================================
// Pagination Defaults
// =============================================================================

const (
	// DefaultPageSize is used when a list request omits page_size.
	DefaultPageSize = 20

	// MaxPageSize caps page_size on list requests.
	MaxPageSize = 100
)

// =============================================================================
// Generator Defaults
// =============================================================================

const (
	// DefaultGeneratorInterval is the spacing between generated points.
	// Override via config: generator.interval
	DefaultGeneratorInterval = 10 * time.Second

	// DefaultGeneratorWindow is the historical window covered by a backfill.
	// 24h at 10s yields 8640 points per parameter.
	// Override via config: generator.window
	DefaultGeneratorWindow = 24 * time.Hour

	// DefaultStepFraction bounds a single random-walk step as a fraction of
	// the parameter's value span.
	// Override via config: generator.step_fraction
	DefaultStepFraction = 0.02

	// DefaultGeneratorSeed seeds the random walk when none is configured.
	// Override via config: generator.seed
	DefaultGeneratorSeed = 42

	// DefaultBackfillWorkers limits concurrent per-parameter backfills.
	// Override via config: generator.backfill_workers
	DefaultBackfillWorkers = 8
)

// =============================================================================
// Live Feed (Scheduler) Defaults
// =============================================================================

const (
	// DefaultLiveWorkers is the number of concurrent live-feed workers.
	// Override via config: generator.live.workers
	DefaultLiveWorkers = 4

	// DefaultLiveQueueSize is the job queue capacity.
	// When full, ticks are delayed (backpressure).
	// Override via config: generator.live.queue_size
	DefaultLiveQueueSize = 1024

	// DefaultSchedulerTickInterval is how often the scheduler checks for due ticks.
	DefaultSchedulerTickInterval = 100 * time.Millisecond

	// DefaultDrainTimeoutSec is how long to wait for in-flight ticks during shutdown.
	DefaultDrainTimeoutSec = 10
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultDataDir is the root directory for journal, metastore and archives.
	// Override via config: storage.data_dir
	DefaultDataDir = "data"

	// DefaultJournalSyncMode controls WAL durability: async, sync, fsync.
	// Override via config: storage.journal.sync_mode
	DefaultJournalSyncMode = "sync"

	// DefaultJournalMaxSegmentSize rotates WAL segments at this size.
	// Override via config: storage.journal.max_segment_size
	DefaultJournalMaxSegmentSize = 64 * 1024 * 1024

	// DefaultRetentionCheckInterval is how often archive retention runs.
	DefaultRetentionCheckInterval = time.Hour

	// DefaultMetastoreFile is the DuckDB catalog file inside the data dir.
	// Override via config: storage.metastore.path
	DefaultMetastoreFile = "catalog.duckdb"
)

// =============================================================================
// MQTT Defaults
// =============================================================================

const (
	// DefaultMQTTBroker is the broker URL for live ingest.
	// Override via config: mqtt.broker or MQTT_BROKER
	DefaultMQTTBroker = "tcp://localhost:1883"

	// DefaultMQTTClientID identifies the daemon at the broker.
	DefaultMQTTClientID = "satmond"

	// DefaultMQTTTopic is the ingest subscription; the last level is the parameter id.
	DefaultMQTTTopic = "satmon/telemetry/+"
)
