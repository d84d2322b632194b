package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"drivesafe/models"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
)

func setUp() {
	db, mock, _ = sqlmock.New()
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestReportsService() *ReportsService {
	svc := NewReportsService(db, NewSettingsService(db))
	svc.now = func() time.Time { return testNow }
	return svc
}

func expectSettingsQuery() {
	mock.ExpectQuery("mobile_camera_ttl_minutes, police_check_ttl_minutes").
		WillReturnRows(sqlmock.NewRows([]string{
			"mobile_camera_ttl_minutes", "police_check_ttl_minutes",
			"duplicate_radius_meters", "duplicate_time_window_minutes", "rate_limit_minutes",
		}).AddRow(75, 52, 200, 15, 5))
}

func expectRateLimitAllowed(userID string, reportType models.ReportType) {
	mock.ExpectExec("INSERT INTO rate_limits").
		WithArgs(userID, string(reportType), testNow, testNow, 5).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func reportColumns() []string {
	return []string{"id", "latitude", "longitude", "report_type", "user_id", "confirmations", "created_at", "expires_at", "is_active"}
}

func TestSubmitReportRateLimited(t *testing.T) {
	it(func() {
		svc := newTestReportsService()

		expectSettingsQuery()
		// Conditional upsert leaves the row alone: still cooling down.
		mock.ExpectExec("INSERT INTO rate_limits").
			WithArgs("user-a", "mobile_camera", testNow, testNow, 5).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT last_submitted_at FROM rate_limits").
			WithArgs("user-a", "mobile_camera").
			WillReturnRows(sqlmock.NewRows([]string{"last_submitted_at"}).
				AddRow(testNow.Add(-2 * time.Minute)))

		_, _, err := svc.SubmitReport(context.Background(), &models.CreateReportArgs{
			Latitude: 51.5074, Longitude: -0.1278,
			ReportType: models.ReportMobileCamera, UserID: "user-a",
		})

		var rateLimited *models.RateLimitedError
		if !errors.As(err, &rateLimited) {
			t.Fatalf("expected RateLimitedError, got %v", err)
		}
		if rateLimited.RetryAfterMinutes != 3 {
			t.Errorf("RetryAfterMinutes = %d, expected 3", rateLimited.RetryAfterMinutes)
		}
		expected := "Please wait 3 more minutes before reporting another mobile camera"
		if rateLimited.Message() != expected {
			t.Errorf("Message = %q, expected %q", rateLimited.Message(), expected)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestSubmitReportCreatesNew(t *testing.T) {
	it(func() {
		svc := newTestReportsService()

		expectSettingsQuery()
		expectRateLimitAllowed("user-a", models.ReportMobileCamera)
		mock.ExpectQuery("FROM reports WHERE report_type = ").
			WillReturnRows(sqlmock.NewRows(reportColumns()))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO reports").
			WithArgs(sqlmock.AnyArg(), 51.5074, -0.1278, "mobile_camera", "user-a",
				1, testNow, testNow.Add(75*time.Minute), true).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO report_confirmations").
			WithArgs(sqlmock.AnyArg(), "user-a").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		resp, report, err := svc.SubmitReport(context.Background(), &models.CreateReportArgs{
			Latitude: 51.5074, Longitude: -0.1278,
			ReportType: models.ReportMobileCamera, UserID: "user-a",
		})
		if err != nil {
			t.Fatalf("SubmitReport failed: %v", err)
		}
		if !resp.Success || resp.Message != "Reported. Thanks!" {
			t.Errorf("unexpected response: %+v", resp)
		}
		if resp.ReportID == "" {
			t.Error("expected a report id")
		}
		if report.Confirmations != 1 {
			t.Errorf("Confirmations = %d, expected 1", report.Confirmations)
		}
		if !report.ExpiresAt.Equal(testNow.Add(75 * time.Minute)) {
			t.Errorf("ExpiresAt = %v, expected creation + 75 minutes", report.ExpiresAt)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestSubmitReportMergesNearby(t *testing.T) {
	it(func() {
		svc := newTestReportsService()

		expectSettingsQuery()
		expectRateLimitAllowed("user-b", models.ReportMobileCamera)
		// An existing report ~26 m away, well inside the 200 m radius.
		mock.ExpectQuery("FROM reports WHERE report_type = ").
			WillReturnRows(sqlmock.NewRows(reportColumns()).
				AddRow("rep-1", 51.5074, -0.1278, "mobile_camera", "user-a", 1,
					testNow.Add(-5*time.Minute), testNow.Add(70*time.Minute), true))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT IGNORE INTO report_confirmations").
			WithArgs("rep-1", "user-b").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE reports SET confirmations").
			WithArgs("rep-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		resp, report, err := svc.SubmitReport(context.Background(), &models.CreateReportArgs{
			Latitude: 51.5076, Longitude: -0.1276,
			ReportType: models.ReportMobileCamera, UserID: "user-b",
		})
		if err != nil {
			t.Fatalf("SubmitReport failed: %v", err)
		}
		if resp.ReportID != "rep-1" {
			t.Errorf("ReportID = %q, expected merge into rep-1", resp.ReportID)
		}
		if resp.Message != "Confirmed! 2 users have reported this." {
			t.Errorf("Message = %q", resp.Message)
		}
		if report.Confirmations != 2 {
			t.Errorf("Confirmations = %d, expected 2", report.Confirmations)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestSubmitReportSameUserNotCountedTwice(t *testing.T) {
	it(func() {
		svc := newTestReportsService()

		expectSettingsQuery()
		expectRateLimitAllowed("user-a", models.ReportMobileCamera)
		mock.ExpectQuery("FROM reports WHERE report_type = ").
			WillReturnRows(sqlmock.NewRows(reportColumns()).
				AddRow("rep-1", 51.5074, -0.1278, "mobile_camera", "user-a", 1,
					testNow.Add(-6*time.Minute), testNow.Add(69*time.Minute), true))
		mock.ExpectBegin()
		// Reporter already present: INSERT IGNORE touches nothing and no
		// increment happens.
		mock.ExpectExec("INSERT IGNORE INTO report_confirmations").
			WithArgs("rep-1", "user-a").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		resp, report, err := svc.SubmitReport(context.Background(), &models.CreateReportArgs{
			Latitude: 51.5074, Longitude: -0.1278,
			ReportType: models.ReportMobileCamera, UserID: "user-a",
		})
		if err != nil {
			t.Fatalf("SubmitReport failed: %v", err)
		}
		if resp.ReportID != "rep-1" {
			t.Errorf("ReportID = %q, expected rep-1", resp.ReportID)
		}
		if report.Confirmations != 1 {
			t.Errorf("Confirmations = %d, expected 1 (distinct users, not submissions)", report.Confirmations)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestSubmitReportOutsideMergeRadiusCreatesNew(t *testing.T) {
	it(func() {
		svc := newTestReportsService()

		expectSettingsQuery()
		expectRateLimitAllowed("user-b", models.ReportMobileCamera)
		// A same-type report ~233 m north: returned by the bounding-box
		// prefilter but rejected by the exact distance refine.
		mock.ExpectQuery("FROM reports WHERE report_type = ").
			WillReturnRows(sqlmock.NewRows(reportColumns()).
				AddRow("rep-1", 51.5095, -0.1278, "mobile_camera", "user-a", 1,
					testNow.Add(-5*time.Minute), testNow.Add(70*time.Minute), true))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO reports").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO report_confirmations").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		resp, _, err := svc.SubmitReport(context.Background(), &models.CreateReportArgs{
			Latitude: 51.5074, Longitude: -0.1278,
			ReportType: models.ReportMobileCamera, UserID: "user-b",
		})
		if err != nil {
			t.Fatalf("SubmitReport failed: %v", err)
		}
		if resp.Message != "Reported. Thanks!" {
			t.Errorf("Message = %q, expected a fresh report", resp.Message)
		}
		if resp.ReportID == "rep-1" {
			t.Error("merged into a report outside the duplicate radius")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestSubmitReportPicksNearestCandidate(t *testing.T) {
	it(func() {
		svc := newTestReportsService()

		expectSettingsQuery()
		expectRateLimitAllowed("user-c", models.ReportMobileCamera)
		// Two candidates in radius: ~111 m and ~28 m away.
		mock.ExpectQuery("FROM reports WHERE report_type = ").
			WillReturnRows(sqlmock.NewRows(reportColumns()).
				AddRow("rep-far", 51.5084, -0.1278, "mobile_camera", "user-a", 1,
					testNow.Add(-10*time.Minute), testNow.Add(65*time.Minute), true).
				AddRow("rep-near", 51.50765, -0.1278, "mobile_camera", "user-b", 1,
					testNow.Add(-3*time.Minute), testNow.Add(72*time.Minute), true))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT IGNORE INTO report_confirmations").
			WithArgs("rep-near", "user-c").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE reports SET confirmations").
			WithArgs("rep-near").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		resp, _, err := svc.SubmitReport(context.Background(), &models.CreateReportArgs{
			Latitude: 51.5074, Longitude: -0.1278,
			ReportType: models.ReportMobileCamera, UserID: "user-c",
		})
		if err != nil {
			t.Fatalf("SubmitReport failed: %v", err)
		}
		if resp.ReportID != "rep-near" {
			t.Errorf("ReportID = %q, expected the nearest candidate rep-near", resp.ReportID)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestSubmitReportInvalidInput(t *testing.T) {
	it(func() {
		svc := newTestReportsService()

		testCases := []struct {
			name string
			args models.CreateReportArgs
		}{
			{"latitude out of range", models.CreateReportArgs{Latitude: 95, Longitude: 0, ReportType: models.ReportMobileCamera, UserID: "u"}},
			{"longitude out of range", models.CreateReportArgs{Latitude: 0, Longitude: 181, ReportType: models.ReportPoliceCheck, UserID: "u"}},
			{"unknown report type", models.CreateReportArgs{Latitude: 0, Longitude: 0, ReportType: "speed_trap", UserID: "u"}},
			{"missing user id", models.CreateReportArgs{Latitude: 0, Longitude: 0, ReportType: models.ReportMobileCamera}},
		}

		for _, testCase := range testCases {
			_, _, err := svc.SubmitReport(context.Background(), &testCase.args)
			var invalid *models.ValidationError
			if !errors.As(err, &invalid) {
				t.Errorf("%s: expected ValidationError, got %v", testCase.name, err)
			}
		}
		// No SQL may run for rejected input.
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestNearbyReportsOrderingAndRadius(t *testing.T) {
	it(func() {
		svc := newTestReportsService()

		// Distances north of the query point: ~50 m, ~100 m, ~901 m and
		// ~1201 m; the last one is outside the 1 km radius.
		mock.ExpectQuery("FROM reports WHERE is_active = true AND expires_at > ").
			WithArgs(testNow, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(reportColumns()).
				AddRow("rep-far", 51.5155, -0.1278, "mobile_camera", "user-1", 2,
					testNow.Add(-10*time.Minute), testNow.Add(65*time.Minute), true).
				AddRow("rep-near", 51.50785, -0.1278, "police_check", "user-2", 1,
					testNow.Add(-1*time.Minute), testNow.Add(51*time.Minute), true).
				AddRow("rep-mid", 51.5083, -0.1278, "mobile_camera", "user-3", 1,
					testNow.Add(-2*time.Minute), testNow.Add(74*time.Minute), true).
				AddRow("rep-out", 51.5182, -0.1278, "mobile_camera", "user-4", 1,
					testNow.Add(-3*time.Minute), testNow.Add(72*time.Minute), true))

		reports, err := svc.NearbyReports(context.Background(), 51.5074, -0.1278, 1.0)
		if err != nil {
			t.Fatalf("NearbyReports failed: %v", err)
		}

		ids := make([]string, 0, len(reports))
		for _, r := range reports {
			ids = append(ids, r.ID)
		}
		expected := []string{"rep-near", "rep-mid", "rep-far"}
		if len(ids) != len(expected) {
			t.Fatalf("got %v, expected %v", ids, expected)
		}
		for i := range expected {
			if ids[i] != expected[i] {
				t.Fatalf("got %v, expected %v", ids, expected)
			}
		}

		for i := 1; i < len(reports); i++ {
			if reports[i].DistanceMeters < reports[i-1].DistanceMeters {
				t.Errorf("results not ascending by distance: %v", reports)
			}
		}
		if reports[0].ExpiresInMinutes != 51 {
			t.Errorf("ExpiresInMinutes = %d, expected 51", reports[0].ExpiresInMinutes)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestDeleteExpired(t *testing.T) {
	it(func() {
		svc := newTestReportsService()

		mock.ExpectExec("DELETE reports, report_confirmations").
			WithArgs(testNow.Add(-24 * time.Hour)).
			WillReturnResult(sqlmock.NewResult(0, 7))

		deleted, err := svc.DeleteExpired(context.Background(), 24*time.Hour)
		if err != nil {
			t.Fatalf("DeleteExpired failed: %v", err)
		}
		if deleted != 7 {
			t.Errorf("deleted = %d, expected 7", deleted)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestExpiresInMinutes(t *testing.T) {
	testCases := []struct {
		name      string
		remaining time.Duration
		expected  int
	}{
		{"already expired", -time.Minute, 0},
		{"expires now", 0, 0},
		{"under a minute rounds up", 30 * time.Second, 1},
		{"exact minutes", 74 * time.Minute, 74},
		{"partial minute rounds up", 74*time.Minute + 30*time.Second, 75},
	}

	for _, testCase := range testCases {
		got := expiresInMinutes(testNow.Add(testCase.remaining), testNow)
		if got != testCase.expected {
			t.Errorf("%s: expiresInMinutes = %d, expected %d", testCase.name, got, testCase.expected)
		}
	}
}
