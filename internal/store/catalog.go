package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xtxerr/satmon/internal/errors"
)

// Catalog is a full snapshot of persisted satellites, units and parameters.
type Catalog struct {
	Satellites []*Satellite
	Units      []*Unit
	Parameters []*Parameter
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// =============================================================================
// Satellites
// =============================================================================

// SaveSatellite inserts or replaces a satellite row.
func (s *Store) SaveSatellite(sat *Satellite) error {
	var metadataJSON []byte
	if len(sat.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(sat.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	var launch sql.NullTime
	if !sat.LaunchDate.IsZero() {
		launch = sql.NullTime{Time: sat.LaunchDate, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO satellites
			(id, name, launch_date, status, metadata, created_at, updated_at, activated_at, disabled_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sat.ID, sat.Name, launch, string(sat.Status), string(metadataJSON),
		sat.CreatedAt, sat.UpdatedAt, nullTime(sat.ActivatedAt), nullTime(sat.DisabledAt), sat.Version)
	if err != nil {
		return fmt.Errorf("save satellite %s: %w: %v", sat.ID, errors.ErrDatabase, err)
	}
	return nil
}

func (s *Store) listSatellites() ([]*Satellite, error) {
	rows, err := s.db.Query(`
		SELECT id, name, launch_date, status, metadata, created_at, updated_at,
		       activated_at, disabled_at, version
		FROM satellites ORDER BY created_at, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query satellites: %w", err)
	}
	defer rows.Close()

	var out []*Satellite
	for rows.Next() {
		sat := &Satellite{}
		var status string
		var metadataJSON sql.NullString
		var launch, activated, disabled sql.NullTime

		if err := rows.Scan(
			&sat.ID, &sat.Name, &launch, &status, &metadataJSON, &sat.CreatedAt, &sat.UpdatedAt,
			&activated, &disabled, &sat.Version,
		); err != nil {
			return nil, fmt.Errorf("scan satellite: %w", err)
		}

		sat.Status, err = ParseSatelliteStatus(status)
		if err != nil {
			return nil, fmt.Errorf("satellite %s: %w", sat.ID, err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &sat.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		if launch.Valid {
			sat.LaunchDate = launch.Time
		}
		if activated.Valid {
			sat.ActivatedAt = &activated.Time
		}
		if disabled.Valid {
			sat.DisabledAt = &disabled.Time
		}

		out = append(out, sat)
	}

	return out, rows.Err()
}

// =============================================================================
// Units
// =============================================================================

// SaveUnit inserts or replaces a unit row.
func (s *Store) SaveUnit(u *Unit) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO units (id, satellite_id, name, description, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.SatelliteID, u.Name, u.Description, u.CreatedAt, u.UpdatedAt, u.Version)
	if err != nil {
		return fmt.Errorf("save unit %s: %w: %v", u.ID, errors.ErrDatabase, err)
	}
	return nil
}

// DeleteUnit deletes a unit and all of its parameters in one transaction.
func (s *Store) DeleteUnit(id string) error {
	return s.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM parameters WHERE unit_id = ?`, id); err != nil {
			return fmt.Errorf("delete parameters of unit %s: %w: %v", id, errors.ErrDatabase, err)
		}
		if _, err := tx.Exec(`DELETE FROM units WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete unit %s: %w: %v", id, errors.ErrDatabase, err)
		}
		return nil
	})
}

func (s *Store) listUnits() ([]*Unit, error) {
	rows, err := s.db.Query(`
		SELECT id, satellite_id, name, description, created_at, updated_at, version
		FROM units ORDER BY created_at, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	var out []*Unit
	for rows.Next() {
		u := &Unit{}
		var description sql.NullString
		if err := rows.Scan(&u.ID, &u.SatelliteID, &u.Name, &description,
			&u.CreatedAt, &u.UpdatedAt, &u.Version); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		u.Description = description.String
		out = append(out, u)
	}

	return out, rows.Err()
}

// =============================================================================
// Parameters
// =============================================================================

// SaveParameter inserts or replaces a parameter row.
func (s *Store) SaveParameter(p *Parameter) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO parameters
			(id, unit_id, satellite_id, name, type, uom, min_value, max_value, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.UnitID, p.SatelliteID, p.Name, string(p.Type), p.UOM, p.Min, p.Max,
		p.CreatedAt, p.UpdatedAt, p.Version)
	if err != nil {
		return fmt.Errorf("save parameter %s: %w: %v", p.ID, errors.ErrDatabase, err)
	}
	return nil
}

// DeleteParameter deletes a parameter row.
func (s *Store) DeleteParameter(id string) error {
	if _, err := s.db.Exec(`DELETE FROM parameters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete parameter %s: %w: %v", id, errors.ErrDatabase, err)
	}
	return nil
}

func (s *Store) listParameters() ([]*Parameter, error) {
	rows, err := s.db.Query(`
		SELECT id, unit_id, satellite_id, name, type, uom, min_value, max_value,
		       created_at, updated_at, version
		FROM parameters ORDER BY created_at, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query parameters: %w", err)
	}
	defer rows.Close()

	var out []*Parameter
	for rows.Next() {
		p := &Parameter{}
		var typ string
		if err := rows.Scan(&p.ID, &p.UnitID, &p.SatelliteID, &p.Name, &typ, &p.UOM,
			&p.Min, &p.Max, &p.CreatedAt, &p.UpdatedAt, &p.Version); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		p.Type = ParameterType(typ)
		out = append(out, p)
	}

	return out, rows.Err()
}

// =============================================================================
// Snapshot
// =============================================================================

// LoadCatalog reads every persisted satellite, unit and parameter.
func (s *Store) LoadCatalog() (*Catalog, error) {
	sats, err := s.listSatellites()
	if err != nil {
		return nil, err
	}
	units, err := s.listUnits()
	if err != nil {
		return nil, err
	}
	params, err := s.listParameters()
	if err != nil {
		return nil, err
	}

	return &Catalog{
		Satellites: sats,
		Units:      units,
		Parameters: params,
	}, nil
}
