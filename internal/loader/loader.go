// Package loader handles configuration file loading, validation, and application.
//
// This package is responsible for:
//   - Loading YAML configuration files (after a .env file, if present)
//   - Expanding environment variables
//   - Validating the result and resolving data paths
//   - Converting the YAML representation into component configs
//   - Seeding the catalog through the manager
package loader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/generator"
	"github.com/xtxerr/satmon/internal/ingest"
	"github.com/xtxerr/satmon/internal/logging"
	"github.com/xtxerr/satmon/internal/manager"
	"github.com/xtxerr/satmon/internal/scheduler"
	"github.com/xtxerr/satmon/internal/storage/parquet"
	"github.com/xtxerr/satmon/internal/storage/wal"
	"github.com/xtxerr/satmon/internal/store"
	"github.com/xtxerr/satmon/internal/validation"
)

var log = logging.Component("loader")

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file. Variables from a .env file in
// the working directory are exported first; ${VAR} references in the file
// are expanded from the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("ignoring unreadable .env file", "error", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of DefaultConfig. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.NewValidation("config", err.Error())
	}
	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if cfg.Listen == "" {
		errs.AddField("listen", "cannot be empty")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs.AddField("log.level", fmt.Sprintf("unknown level %q", cfg.Log.Level))
	}

	for name, d := range map[string]Duration{
		"http.read_timeout":    cfg.HTTP.ReadTimeout,
		"http.write_timeout":   cfg.HTTP.WriteTimeout,
		"http.idle_timeout":    cfg.HTTP.IdleTimeout,
		"http.request_timeout": cfg.HTTP.RequestTimeout,
	} {
		if d < 0 {
			errs.AddField(name, "cannot be negative")
		}
	}

	st := cfg.Storage
	if st.DataDir == "" && (st.Journal.Enabled || st.Metastore.Enabled) {
		errs.AddField("storage.data_dir", "cannot be empty when journal or metastore is enabled")
	}
	if st.Journal.Enabled {
		switch st.Journal.SyncMode {
		case "async", "sync", "fsync":
		default:
			errs.AddField("storage.journal.sync_mode", fmt.Sprintf("must be async, sync or fsync, got %q", st.Journal.SyncMode))
		}
		if st.Journal.MaxSegmentSize <= 0 {
			errs.AddField("storage.journal.max_segment_size", "must be positive")
		}
	}
	switch st.Compression {
	case "zstd", "snappy", "lz4", "gzip", "none", "":
	default:
		errs.AddField("storage.compression", fmt.Sprintf("unknown codec %q", st.Compression))
	}
	if st.ArchiveRetention < 0 {
		errs.AddField("storage.archive_retention", "cannot be negative")
	}

	errs.Add(cfg.GeneratorConfig().Validate())
	if cfg.Generator.Live.Enabled {
		if cfg.Generator.Live.Workers <= 0 {
			errs.AddField("generator.live.workers", "must be positive")
		}
		if cfg.Generator.Live.QueueSize <= 0 {
			errs.AddField("generator.live.queue_size", "must be positive")
		}
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			errs.AddField("mqtt.qos", "must be 0, 1 or 2")
		} else {
			errs.Add(cfg.IngestConfig().Validate())
		}
	}

	validateCatalog(cfg.Catalog, errs)

	return errs.Err()
}

func validateCatalog(seeds []SatelliteSeed, errs *errors.ValidationErrors) {
	satNames := make(map[string]bool)
	for i, s := range seeds {
		field := fmt.Sprintf("catalog[%d]", i)
		if err := validation.ValidateEntityName(s.Name); err != nil {
			errs.Add(errors.Wrap(err, field+".name"))
		} else if satNames[s.Name] {
			errs.AddField(field+".name", fmt.Sprintf("duplicate satellite %q", s.Name))
		}
		satNames[s.Name] = true

		if s.LaunchDate != "" {
			if _, err := parseLaunchDate(s.LaunchDate); err != nil {
				errs.Add(errors.Wrap(err, field+".launch_date"))
			}
		}

		unitNames := make(map[string]bool)
		for j, u := range s.Units {
			ufield := fmt.Sprintf("%s.units[%d]", field, j)
			if err := validation.ValidateEntityName(u.Name); err != nil {
				errs.Add(errors.Wrap(err, ufield+".name"))
			} else if unitNames[u.Name] {
				errs.AddField(ufield+".name", fmt.Sprintf("duplicate unit %q", u.Name))
			}
			unitNames[u.Name] = true

			for k, p := range u.Parameters {
				pfield := fmt.Sprintf("%s.parameters[%d]", ufield, k)
				if err := validation.ValidateParameterName(p.Name); err != nil {
					errs.Add(errors.Wrap(err, pfield+".name"))
				}
				if _, err := store.LookupType(store.ParameterType(p.Type)); err != nil {
					errs.Add(errors.Wrap(err, pfield+".type"))
				}
			}
		}
	}
}

// parseLaunchDate accepts a calendar date or any API time value.
func parseLaunchDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return validation.ParseTime("launch_date", s)
}

// =============================================================================
// Paths
// =============================================================================

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Storage.DataDir, p)
}

// JournalDir returns the WAL directory.
func (c *Config) JournalDir() string {
	return c.resolve(c.Storage.Journal.Dir)
}

// MetastoreDSN returns the DuckDB path; empty means in-memory.
func (c *Config) MetastoreDSN() string {
	return c.resolve(c.Storage.Metastore.Path)
}

// ArchiveDir returns the Parquet archive directory.
func (c *Config) ArchiveDir() string {
	return c.resolve(c.Storage.ArchiveDir)
}

// =============================================================================
// Conversion: Config → component configs
// =============================================================================

// WALOptions converts the journal section.
func (c *Config) WALOptions() wal.Options {
	opts := wal.DefaultOptions()
	opts.SyncMode = c.Storage.Journal.SyncMode
	if c.Storage.Journal.MaxSegmentSize > 0 {
		opts.MaxSegmentSize = c.Storage.Journal.MaxSegmentSize.Bytes()
	}
	return opts
}

// StoreConfig converts the metastore section.
func (c *Config) StoreConfig() store.Config {
	cfg := store.DefaultConfig()
	cfg.DSN = c.MetastoreDSN()
	return cfg
}

// ParquetOptions converts the archive codec.
func (c *Config) ParquetOptions() parquet.Options {
	opts := parquet.DefaultOptions()
	opts.Compression = parquet.ParseCompressionType(c.Storage.Compression)
	return opts
}

// GeneratorConfig converts the generator section.
func (c *Config) GeneratorConfig() generator.Config {
	return generator.Config{
		Seed:         c.Generator.Seed,
		StepFraction: c.Generator.StepFraction,
		Interval:     c.Generator.Interval.Duration(),
		Window:       c.Generator.Window.Duration(),
		Workers:      c.Generator.BackfillWorkers,
	}
}

// FeedConfig converts the live feed section.
func (c *Config) FeedConfig() scheduler.FeedConfig {
	sc := scheduler.DefaultConfig()
	sc.Workers = c.Generator.Live.Workers
	sc.QueueSize = c.Generator.Live.QueueSize
	sc.ResultsSize = c.Generator.Live.QueueSize
	return scheduler.FeedConfig{
		Interval:          c.Generator.Interval.Duration(),
		ReconcileInterval: c.Generator.Live.ReconcileInterval.Duration(),
		Scheduler:         sc,
	}
}

// IngestConfig converts the MQTT section.
func (c *Config) IngestConfig() ingest.Config {
	return ingest.Config{
		Broker:   c.MQTT.Broker,
		ClientID: c.MQTT.ClientID,
		Username: c.MQTT.Username,
		Password: c.MQTT.Password,
		Topic:    c.MQTT.Topic,
		QoS:      byte(c.MQTT.QoS),
	}
}

// =============================================================================
// Apply
// =============================================================================

// ApplyResult holds statistics from seeding the catalog.
type ApplyResult struct {
	SatellitesCreated   int
	SatellitesActivated int
	UnitsCreated        int
	ParametersCreated   int
	Errors              []string
}

// Apply seeds the catalog. Existing entries, matched by name within their
// parent, are kept as they are. Apply keeps going after an error and
// reports every failure.
func Apply(cfg *Config, mgr *manager.Manager) (*ApplyResult, error) {
	result := &ApplyResult{}

	for _, seed := range cfg.Catalog {
		if err := applySatellite(mgr, seed, result); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	if len(result.Errors) > 0 {
		return result, fmt.Errorf("apply had %d errors", len(result.Errors))
	}
	return result, nil
}

func applySatellite(mgr *manager.Manager, seed SatelliteSeed, result *ApplyResult) error {
	sat, err := mgr.Satellites.GetByName(seed.Name)
	if errors.IsNotFound(err) {
		var launch time.Time
		if seed.LaunchDate != "" {
			if launch, err = parseLaunchDate(seed.LaunchDate); err != nil {
				return fmt.Errorf("satellite %s: %w", seed.Name, err)
			}
		}
		if sat, err = mgr.Satellites.Register(seed.Name, launch, seed.Metadata); err != nil {
			return fmt.Errorf("create satellite %s: %w", seed.Name, err)
		}
		result.SatellitesCreated++
	} else if err != nil {
		return fmt.Errorf("get satellite %s: %w", seed.Name, err)
	}

	for _, u := range seed.Units {
		if err := applyUnit(mgr, sat.ID, u, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("satellite %s: %v", seed.Name, err))
		}
	}

	// Activate last so the live feed picks up the whole tree at once.
	if seed.Activate && sat.Status == store.StatusPending {
		if _, err := mgr.Satellites.Activate(sat.ID); err != nil {
			return fmt.Errorf("activate satellite %s: %w", seed.Name, err)
		}
		result.SatellitesActivated++
	}
	return nil
}

func applyUnit(mgr *manager.Manager, satID string, seed UnitSeed, result *ApplyResult) error {
	units, err := mgr.Units.ListBySatellite(satID)
	if err != nil {
		return err
	}

	var unit *store.Unit
	for _, u := range units {
		if u.Name == seed.Name {
			unit = u
			break
		}
	}
	if unit == nil {
		if unit, err = mgr.Units.Create(satID, seed.Name, seed.Description); err != nil {
			return fmt.Errorf("create unit %s: %w", seed.Name, err)
		}
		result.UnitsCreated++
	}

	params, err := mgr.Parameters.ListByUnit(unit.ID)
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(params))
	for _, p := range params {
		existing[p.Name] = true
	}

	for _, p := range seed.Parameters {
		if existing[p.Name] {
			continue
		}
		if _, err := mgr.Parameters.Define(unit.ID, p.Name, store.ParameterType(p.Type), p.UOM); err != nil {
			return fmt.Errorf("unit %s: define parameter %s: %w", seed.Name, p.Name, err)
		}
		result.ParametersCreated++
	}
	return nil
}
