package database

import (
	"context"
	"database/sql"
	"fmt"

	"drivesafe/models"

	"github.com/apex/log"
)

// SettingsService reads and writes the single admin-adjustable settings row
// (TTLs, merge radius and window, rate-limit cooldown).
type SettingsService struct {
	db *sql.DB
}

func NewSettingsService(db *sql.DB) *SettingsService {
	return &SettingsService{db: db}
}

// Get returns the stored settings, or the defaults if no row has been
// written yet.
func (s *SettingsService) Get(ctx context.Context) (models.Settings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		mobile_camera_ttl_minutes, police_check_ttl_minutes,
		duplicate_radius_meters, duplicate_time_window_minutes, rate_limit_minutes
		FROM settings WHERE id = 1`)

	var settings models.Settings
	err := row.Scan(
		&settings.MobileCameraTTLMinutes,
		&settings.PoliceCheckTTLMinutes,
		&settings.DuplicateRadiusMeters,
		&settings.DuplicateTimeWindowMinutes,
		&settings.RateLimitMinutes,
	)
	if err == sql.ErrNoRows {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	return settings, nil
}

// Update replaces the settings row.
func (s *SettingsService) Update(ctx context.Context, settings *models.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `INSERT INTO settings
		(id, mobile_camera_ttl_minutes, police_check_ttl_minutes,
		 duplicate_radius_meters, duplicate_time_window_minutes, rate_limit_minutes)
		VALUES (1, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		 mobile_camera_ttl_minutes = VALUES(mobile_camera_ttl_minutes),
		 police_check_ttl_minutes = VALUES(police_check_ttl_minutes),
		 duplicate_radius_meters = VALUES(duplicate_radius_meters),
		 duplicate_time_window_minutes = VALUES(duplicate_time_window_minutes),
		 rate_limit_minutes = VALUES(rate_limit_minutes)`,
		settings.MobileCameraTTLMinutes,
		settings.PoliceCheckTTLMinutes,
		settings.DuplicateRadiusMeters,
		settings.DuplicateTimeWindowMinutes,
		settings.RateLimitMinutes)
	if err != nil {
		log.Errorf("Failed to update settings: %v", err)
		return fmt.Errorf("failed to update settings: %w", err)
	}
	logResult("updateSettings", result, err, false)
	return nil
}

// logResult logs unexpected affected-row counts on write paths.
func logResult(msgPrefix string, r sql.Result, e error, expectOne bool) {
	if e != nil {
		log.Errorf("%s: query failed: %v", msgPrefix, e)
		return
	}
	rows, err := r.RowsAffected()
	if err != nil {
		log.Errorf("%s: failed to get status of db op: %v", msgPrefix, err)
		return
	}
	if expectOne && rows != 1 {
		log.Warnf("%s: expected to affect 1 row, affected %d", msgPrefix, rows)
	}
}
