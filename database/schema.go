package database

import (
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

// InitSchema creates the necessary database tables if they don't exist
func InitSchema(db *sql.DB) error {
	log.Info("Initializing drivesafe database schema...")

	camerasTableSQL := `
	CREATE TABLE IF NOT EXISTS cameras(
		seq INT NOT NULL AUTO_INCREMENT,
		id VARCHAR(36) NOT NULL,
		latitude FLOAT NOT NULL,
		longitude FLOAT NOT NULL,
		camera_type ENUM('fixed', 'average_speed_start', 'average_speed_end', 'red_light') NOT NULL,
		road_name VARCHAR(255),
		speed_limit INT,
		direction VARCHAR(2),
		confidence INT NOT NULL DEFAULT 100,
		last_verified TIMESTAMP NULL,
		is_active BOOL NOT NULL DEFAULT true,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (seq),
		UNIQUE INDEX id_index (id),
		INDEX latitude_index (latitude),
		INDEX longitude_index (longitude),
		INDEX is_active_index (is_active)
	)`

	if _, err := db.Exec(camerasTableSQL); err != nil {
		return fmt.Errorf("failed to create cameras table: %w", err)
	}
	log.Info("Cameras table created/verified")

	reportsTableSQL := `
	CREATE TABLE IF NOT EXISTS reports(
		seq INT NOT NULL AUTO_INCREMENT,
		id VARCHAR(36) NOT NULL,
		latitude FLOAT NOT NULL,
		longitude FLOAT NOT NULL,
		report_type ENUM('mobile_camera', 'police_check') NOT NULL,
		user_id VARCHAR(255) NOT NULL,
		confirmations INT NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP NOT NULL,
		is_active BOOL NOT NULL DEFAULT true,
		PRIMARY KEY (seq),
		UNIQUE INDEX id_index (id),
		INDEX latitude_index (latitude),
		INDEX longitude_index (longitude),
		INDEX report_type_index (report_type),
		INDEX expires_at_index (expires_at)
	)`

	if _, err := db.Exec(reportsTableSQL); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}
	log.Info("Reports table created/verified")

	// One row per user that confirmed a report; confirmations counts
	// distinct users, not submissions.
	confirmationsTableSQL := `
	CREATE TABLE IF NOT EXISTS report_confirmations(
		report_id VARCHAR(36) NOT NULL,
		user_id VARCHAR(255) NOT NULL,
		confirmed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (report_id, user_id)
	)`

	if _, err := db.Exec(confirmationsTableSQL); err != nil {
		return fmt.Errorf("failed to create report_confirmations table: %w", err)
	}
	log.Info("Report_confirmations table created/verified")

	rateLimitsTableSQL := `
	CREATE TABLE IF NOT EXISTS rate_limits(
		user_id VARCHAR(255) NOT NULL,
		report_type ENUM('mobile_camera', 'police_check') NOT NULL,
		last_submitted_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, report_type)
	)`

	if _, err := db.Exec(rateLimitsTableSQL); err != nil {
		return fmt.Errorf("failed to create rate_limits table: %w", err)
	}
	log.Info("Rate_limits table created/verified")

	settingsTableSQL := `
	CREATE TABLE IF NOT EXISTS settings(
		id INT NOT NULL DEFAULT 1,
		mobile_camera_ttl_minutes INT NOT NULL DEFAULT 75,
		police_check_ttl_minutes INT NOT NULL DEFAULT 52,
		duplicate_radius_meters INT NOT NULL DEFAULT 200,
		duplicate_time_window_minutes INT NOT NULL DEFAULT 15,
		rate_limit_minutes INT NOT NULL DEFAULT 5,
		PRIMARY KEY (id)
	)`

	if _, err := db.Exec(settingsTableSQL); err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}
	log.Info("Settings table created/verified")

	log.Info("Database schema initialization completed")
	return nil
}
