package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"drivesafe/geo"
	"drivesafe/models"

	"github.com/apex/log"
	"github.com/golang/geo/s2"
	"github.com/google/uuid"
)

// ReportsService owns the community report lifecycle: rate limiting,
// duplicate merging, TTL assignment and the nearby read path.
type ReportsService struct {
	db       *sql.DB
	settings *SettingsService

	// now is swappable for tests.
	now func() time.Time

	// Merge resolution is serialized per coarse geographic cell so that two
	// near-simultaneous submissions for the same new sighting end up as one
	// record instead of two.
	mu        sync.Mutex
	cellLocks map[s2.CellID]*sync.Mutex
}

func NewReportsService(db *sql.DB, settings *SettingsService) *ReportsService {
	return &ReportsService{
		db:        db,
		settings:  settings,
		now:       time.Now,
		cellLocks: make(map[s2.CellID]*sync.Mutex),
	}
}

func (s *ReportsService) lockCell(lat, lon float64) *sync.Mutex {
	cell := geo.MergeLockCell(lat, lon)
	s.mu.Lock()
	lock, ok := s.cellLocks[cell]
	if !ok {
		lock = &sync.Mutex{}
		s.cellLocks[cell] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock
}

// SubmitReport runs the full submission pipeline: validate, rate-limit,
// search for a mergeable live report, then merge or create. The returned
// report is the stored record the submission ended up in.
func (s *ReportsService) SubmitReport(ctx context.Context, args *models.CreateReportArgs) (*models.ReportResponse, *models.CommunityReport, error) {
	if err := args.Validate(); err != nil {
		return nil, nil, err
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	now := s.now().UTC().Truncate(time.Second)

	// Anti-spam gate runs first; a rejected submission never reaches the
	// reports table.
	if err := s.checkAndRecordRateLimit(ctx, args.UserID, args.ReportType, now, settings.RateLimitMinutes); err != nil {
		return nil, nil, err
	}

	lock := s.lockCell(args.Latitude, args.Longitude)
	defer lock.Unlock()

	candidate, distance, err := s.findMergeCandidate(ctx, args, now, &settings)
	if err != nil {
		return nil, nil, err
	}

	if candidate != nil {
		log.Infof("Merging %s report at %f,%f into %s (%dm away)",
			args.ReportType, args.Latitude, args.Longitude, candidate.ID, int(math.Round(distance)))
		return s.mergeReport(ctx, candidate, args.UserID)
	}

	return s.createReport(ctx, args, now, &settings)
}

// findMergeCandidate returns the nearest live report of the same type within
// the duplicate radius, created inside the merge window. Ties by smallest id.
func (s *ReportsService) findMergeCandidate(ctx context.Context, args *models.CreateReportArgs, now time.Time, settings *models.Settings) (*models.CommunityReport, float64, error) {
	bbox := geo.BoundingBoxAround(args.Latitude, args.Longitude, float64(settings.DuplicateRadiusMeters)/1000.0)
	windowStart := now.Add(-time.Duration(settings.DuplicateTimeWindowMinutes) * time.Minute)

	rows, err := s.db.QueryContext(ctx, `SELECT id, latitude, longitude, report_type, user_id, confirmations, created_at, expires_at, is_active
		FROM reports
		WHERE report_type = ? AND is_active = true AND expires_at > ? AND created_at >= ?
		 AND latitude >= ? AND latitude <= ? AND longitude >= ? AND longitude <= ?`,
		args.ReportType, now, windowStart,
		bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query merge candidates: %w", err)
	}
	defer rows.Close()

	var best *models.CommunityReport
	var bestDistance float64
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		distance := geo.HaversineMeters(args.Latitude, args.Longitude, report.Latitude, report.Longitude)
		if distance > float64(settings.DuplicateRadiusMeters) {
			continue
		}
		if best == nil || distance < bestDistance || (distance == bestDistance && report.ID < best.ID) {
			best = report
			bestDistance = distance
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to scan merge candidates: %w", err)
	}
	return best, bestDistance, nil
}

// mergeReport counts the submission as a confirmation of an existing report.
// A user already present in the report's reporter set is not counted twice.
func (s *ReportsService) mergeReport(ctx context.Context, candidate *models.CommunityReport, userID string) (*models.ReportResponse, *models.CommunityReport, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT IGNORE INTO report_confirmations (report_id, user_id) VALUES (?, ?)`,
		candidate.ID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record confirmation: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get confirmation result: %w", err)
	}

	confirmations := candidate.Confirmations
	if inserted == 1 {
		confirmations++
		result, err := tx.ExecContext(ctx,
			`UPDATE reports SET confirmations = confirmations + 1 WHERE id = ?`, candidate.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to increment confirmations: %w", err)
		}
		logResult("mergeReport", result, err, true)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit merge: %w", err)
	}

	merged := *candidate
	merged.Confirmations = confirmations
	return &models.ReportResponse{
		Success:  true,
		Message:  fmt.Sprintf("Confirmed! %d users have reported this.", confirmations),
		ReportID: merged.ID,
	}, &merged, nil
}

func (s *ReportsService) createReport(ctx context.Context, args *models.CreateReportArgs, now time.Time, settings *models.Settings) (*models.ReportResponse, *models.CommunityReport, error) {
	report := &models.CommunityReport{
		ID:            uuid.New().String(),
		Latitude:      args.Latitude,
		Longitude:     args.Longitude,
		ReportType:    args.ReportType,
		UserID:        args.UserID,
		Confirmations: 1,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(settings.TTLMinutes(args.ReportType)) * time.Minute),
		IsActive:      true,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin create transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `INSERT
		INTO reports (id, latitude, longitude, report_type, user_id, confirmations, created_at, expires_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.Latitude, report.Longitude, report.ReportType, report.UserID,
		report.Confirmations, report.CreatedAt, report.ExpiresAt, report.IsActive)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert report: %w", err)
	}
	logResult("createReport", result, err, true)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO report_confirmations (report_id, user_id) VALUES (?, ?)`,
		report.ID, args.UserID); err != nil {
		return nil, nil, fmt.Errorf("failed to record reporter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit report: %w", err)
	}

	log.Infof("Created %s report %s at %f,%f, expires %v",
		report.ReportType, report.ID, report.Latitude, report.Longitude, report.ExpiresAt)
	return &models.ReportResponse{
		Success:  true,
		Message:  "Reported. Thanks!",
		ReportID: report.ID,
	}, report, nil
}

// NearbyReports returns live reports within radiusKm of the query point,
// annotated with distance and remaining TTL, ascending by distance.
func (s *ReportsService) NearbyReports(ctx context.Context, lat, lon, radiusKm float64) ([]models.NearbyReport, error) {
	if err := models.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Second)
	bbox := geo.BoundingBoxAround(lat, lon, radiusKm)

	rows, err := s.db.QueryContext(ctx, `SELECT id, latitude, longitude, report_type, user_id, confirmations, created_at, expires_at, is_active
		FROM reports
		WHERE is_active = true AND expires_at > ?
		 AND latitude >= ? AND latitude <= ? AND longitude >= ? AND longitude <= ?`,
		now, bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby reports: %w", err)
	}
	defer rows.Close()

	result := []models.NearbyReport{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		distance := geo.HaversineMeters(lat, lon, report.Latitude, report.Longitude)
		if distance > radiusKm*1000 {
			continue
		}
		result = append(result, models.NearbyReport{
			CommunityReport:  *report,
			DistanceMeters:   int(math.Round(distance)),
			ExpiresInMinutes: expiresInMinutes(report.ExpiresAt, now),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan nearby reports: %w", err)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DistanceMeters != result[j].DistanceMeters {
			return result[i].DistanceMeters < result[j].DistanceMeters
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// DeleteExpired physically removes reports that expired more than grace ago,
// together with their confirmation rows. Housekeeping only: the read-time
// expiry filter is the correctness guarantee.
func (s *ReportsService) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-grace)
	result, err := s.db.ExecContext(ctx, `DELETE reports, report_confirmations
		FROM reports
		LEFT JOIN report_confirmations ON report_confirmations.report_id = reports.id
		WHERE reports.expires_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reports: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get delete result: %w", err)
	}
	return rows, nil
}

// expiresInMinutes is max(0, ceil(remaining/minute)); a still-live report
// never shows zero minutes left.
func expiresInMinutes(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}

func scanReport(rows *sql.Rows) (*models.CommunityReport, error) {
	report := &models.CommunityReport{}
	if err := rows.Scan(
		&report.ID, &report.Latitude, &report.Longitude, &report.ReportType,
		&report.UserID, &report.Confirmations, &report.CreatedAt,
		&report.ExpiresAt, &report.IsActive); err != nil {
		return nil, fmt.Errorf("failed to scan report row: %w", err)
	}
	return report, nil
}
