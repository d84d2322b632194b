package database

import (
	"context"
	"fmt"
	"time"

	"drivesafe/models"

	"github.com/apex/log"
)

// checkAndRecordRateLimit enforces the per-(user, report_type) cooldown with
// a single conditional upsert. The write succeeds only when the cooldown has
// elapsed, so two concurrent submissions from the same user of the same type
// cannot both pass, even across server instances.
func (s *ReportsService) checkAndRecordRateLimit(ctx context.Context, userID string, reportType models.ReportType, now time.Time, windowMinutes int) error {
	result, err := s.db.ExecContext(ctx, `INSERT INTO rate_limits (user_id, report_type, last_submitted_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE last_submitted_at =
		 IF(? >= last_submitted_at + INTERVAL ? MINUTE, VALUES(last_submitted_at), last_submitted_at)`,
		userID, reportType, now, now, windowMinutes)
	if err != nil {
		return fmt.Errorf("failed to update rate limit for %s/%s: %w", userID, reportType, err)
	}

	// MySQL reports 1 for a fresh insert and 2 for a changed update; 0 means
	// the conditional update left the row alone, i.e. still cooling down.
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rate limit result: %w", err)
	}
	if rows != 0 {
		return nil
	}

	var lastSubmittedAt time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT last_submitted_at FROM rate_limits WHERE user_id = ? AND report_type = ?`,
		userID, reportType).Scan(&lastSubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to read rate limit for %s/%s: %w", userID, reportType, err)
	}

	elapsed := now.Sub(lastSubmittedAt)
	retryAfter := windowMinutes - int(elapsed.Seconds())/60
	if retryAfter < 1 {
		retryAfter = 1
	}
	log.Infof("Rate limited %s for %s, %d minutes remaining", userID, reportType, retryAfter)
	return &models.RateLimitedError{ReportType: reportType, RetryAfterMinutes: retryAfter}
}
