// Package loader - Configuration Types
//
// Defines the YAML configuration structure for satmond.
//
//	listen:     HTTP listen address
//	log:        level and format
//	http:       server timeouts
//	storage:    data dir, telemetry journal (WAL), metastore (DuckDB), archive
//	generator:  synthetic telemetry (backfill and live feed)
//	mqtt:       optional live ingest subscription
//	catalog:    satellites → units → parameters seeded at startup
package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/satmon/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for satmond.
type Config struct {
	// Listen is the HTTP listen address.
	// Format: "host:port" or ":port"
	// Default: "0.0.0.0:8080"
	Listen string `yaml:"listen"`

	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Generator GeneratorConfig `yaml:"generator"`
	MQTT      MQTTConfig      `yaml:"mqtt"`

	// Catalog is applied through the manager at startup. Entries that
	// already exist (matched by name) are left alone.
	Catalog []SatelliteSeed `yaml:"catalog"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches to JSON output.
	JSON bool `yaml:"json"`
}

// HTTPConfig holds HTTP server timeouts.
type HTTPConfig struct {
	ReadTimeout    Duration `yaml:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
	IdleTimeout    Duration `yaml:"idle_timeout"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// =============================================================================
// Storage Configuration
// =============================================================================

// StorageConfig configures everything written to disk.
type StorageConfig struct {
	// DataDir is the root for relative journal, metastore and archive paths.
	DataDir string `yaml:"data_dir"`

	Journal   JournalConfig   `yaml:"journal"`
	Metastore MetastoreConfig `yaml:"metastore"`

	// ArchiveDir holds Parquet exports. Relative to DataDir.
	ArchiveDir string `yaml:"archive_dir"`

	// Compression is the Parquet codec: zstd, snappy, lz4, gzip, none.
	Compression string `yaml:"compression"`

	// ArchiveRetention prunes archive files older than this. Zero keeps
	// everything.
	ArchiveRetention Duration `yaml:"archive_retention"`
}

// JournalConfig configures the telemetry write-ahead log.
type JournalConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir is relative to DataDir. Default: "wal"
	Dir string `yaml:"dir"`

	// SyncMode: async, sync, fsync.
	SyncMode string `yaml:"sync_mode"`

	// MaxSegmentSize rotates segments, e.g. "64MB".
	MaxSegmentSize ByteSize `yaml:"max_segment_size"`
}

// MetastoreConfig configures the DuckDB catalog database.
type MetastoreConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is relative to DataDir. Empty means in-memory.
	Path string `yaml:"path"`
}

// =============================================================================
// Generator Configuration
// =============================================================================

// GeneratorConfig configures synthetic telemetry.
type GeneratorConfig struct {
	Seed            uint64   `yaml:"seed"`
	Interval        Duration `yaml:"interval"`
	Window          Duration `yaml:"window"`
	StepFraction    float64  `yaml:"step_fraction"`
	BackfillWorkers int      `yaml:"backfill_workers"`

	// BackfillOnStart fills the default window for every active parameter.
	BackfillOnStart bool `yaml:"backfill_on_start"`

	Live LiveConfig `yaml:"live"`
}

// LiveConfig configures the live feed scheduler.
type LiveConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Workers           int      `yaml:"workers"`
	QueueSize         int      `yaml:"queue_size"`
	ReconcileInterval Duration `yaml:"reconcile_interval"`
}

// =============================================================================
// MQTT Configuration
// =============================================================================

// MQTTConfig configures the optional MQTT subscriber.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
}

// =============================================================================
// Catalog Seed
// =============================================================================

// SatelliteSeed declares one satellite.
type SatelliteSeed struct {
	Name       string            `yaml:"name"`
	LaunchDate string            `yaml:"launch_date"`
	Metadata   map[string]string `yaml:"metadata"`
	Activate   bool              `yaml:"activate"`
	Units      []UnitSeed        `yaml:"units"`
}

// UnitSeed declares one unit.
type UnitSeed struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Parameters  []ParameterSeed `yaml:"parameters"`
}

// ParameterSeed declares one parameter. UOM defaults to the type's unit.
type ParameterSeed struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	UOM  string `yaml:"uom"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Listen: config.DefaultListenAddress,
		Log: LogConfig{
			Level: "info",
		},
		HTTP: HTTPConfig{
			ReadTimeout:    Duration(config.DefaultReadTimeout),
			WriteTimeout:   Duration(config.DefaultWriteTimeout),
			IdleTimeout:    Duration(config.DefaultIdleTimeout),
			RequestTimeout: Duration(config.DefaultRequestTimeout),
		},
		Storage: StorageConfig{
			DataDir: config.DefaultDataDir,
			Journal: JournalConfig{
				Enabled:        true,
				Dir:            "wal",
				SyncMode:       config.DefaultJournalSyncMode,
				MaxSegmentSize: ByteSize(config.DefaultJournalMaxSegmentSize),
			},
			Metastore: MetastoreConfig{
				Enabled: true,
				Path:    config.DefaultMetastoreFile,
			},
			ArchiveDir:  "archive",
			Compression: "zstd",
		},
		Generator: GeneratorConfig{
			Seed:            config.DefaultGeneratorSeed,
			Interval:        Duration(config.DefaultGeneratorInterval),
			Window:          Duration(config.DefaultGeneratorWindow),
			StepFraction:    config.DefaultStepFraction,
			BackfillWorkers: config.DefaultBackfillWorkers,
			Live: LiveConfig{
				Enabled:           true,
				Workers:           config.DefaultLiveWorkers,
				QueueSize:         config.DefaultLiveQueueSize,
				ReconcileInterval: Duration(5 * time.Second),
			},
		},
		MQTT: MQTTConfig{
			Broker:   config.DefaultMQTTBroker,
			ClientID: config.DefaultMQTTClientID,
			Topic:    config.DefaultMQTTTopic,
			QoS:      1,
		},
	}
}

// =============================================================================
// Helper Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Supports: "10s", "5m", "24h", or plain integers (seconds).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if secs, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ByteSize is a size in bytes that can be unmarshaled from YAML.
// Supports: "100MB", "1GB", "500KB", or plain bytes.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	size, err := parseByteSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = ByteSize(size)
	return nil
}

// parseByteSize parses a size string like "100MB" or "1GB".
func parseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	// Longest suffixes first so "MB" is not read as "B".
	units := []struct {
		suffix string
		mult   int64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}

	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			num := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			n, err := strconv.ParseFloat(num, 64)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("invalid size %q", s)
			}
			return int64(n * float64(u.mult)), nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n, nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}
