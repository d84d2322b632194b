package models

import (
	"strings"
	"time"
)

// CameraType enumerates the kinds of permanently sited enforcement devices.
type CameraType string

const (
	CameraFixed             CameraType = "fixed"
	CameraAverageSpeedStart CameraType = "average_speed_start"
	CameraAverageSpeedEnd   CameraType = "average_speed_end"
	CameraRedLight          CameraType = "red_light"
)

func (t CameraType) Valid() bool {
	switch t {
	case CameraFixed, CameraAverageSpeedStart, CameraAverageSpeedEnd, CameraRedLight:
		return true
	}
	return false
}

// ReportType enumerates the kinds of perishable community sightings.
type ReportType string

const (
	ReportMobileCamera ReportType = "mobile_camera"
	ReportPoliceCheck  ReportType = "police_check"
)

func (t ReportType) Valid() bool {
	return t == ReportMobileCamera || t == ReportPoliceCheck
}

// Label is the human-readable form used in client-facing messages,
// e.g. "mobile camera".
func (t ReportType) Label() string {
	return strings.ReplaceAll(string(t), "_", " ")
}

// SpeedCamera is a permanently sited enforcement device. Cameras never
// expire; they are disabled via IsActive instead of being deleted.
type SpeedCamera struct {
	ID           string     `json:"id"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	CameraType   CameraType `json:"camera_type"`
	RoadName     string     `json:"road_name,omitempty"`
	SpeedLimit   int        `json:"speed_limit,omitempty"` // mph
	Direction    string     `json:"direction,omitempty"`   // 'N', 'S', 'NE', ...
	Confidence   int        `json:"confidence"`            // 0-100, provenance weight
	LastVerified time.Time  `json:"last_verified"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CommunityReport is a crowd-sourced sighting. It is live until ExpiresAt;
// queries never return expired reports.
type CommunityReport struct {
	ID            string     `json:"id"`
	Latitude      float64    `json:"latitude"`
	Longitude     float64    `json:"longitude"`
	ReportType    ReportType `json:"report_type"`
	UserID        string     `json:"user_id"` // first reporter (device ID)
	Confirmations int        `json:"confirmations"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	IsActive      bool       `json:"is_active"`
}

// CreateCameraArgs is the admin request to add a camera.
type CreateCameraArgs struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	CameraType CameraType `json:"camera_type"`
	RoadName   string     `json:"road_name,omitempty"`
	SpeedLimit int        `json:"speed_limit,omitempty"`
	Direction  string     `json:"direction,omitempty"`
}

func (a *CreateCameraArgs) Validate() error {
	if err := ValidateCoordinates(a.Latitude, a.Longitude); err != nil {
		return err
	}
	if !a.CameraType.Valid() {
		return &ValidationError{Field: "camera_type", Reason: "unknown camera type: " + string(a.CameraType)}
	}
	if a.SpeedLimit < 0 {
		return &ValidationError{Field: "speed_limit", Reason: "must be positive"}
	}
	return nil
}

// CreateReportArgs is the submit-report request. Field names are a contract
// with the mobile app.
type CreateReportArgs struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	ReportType ReportType `json:"report_type"`
	UserID     string     `json:"user_id"`
}

func (a *CreateReportArgs) Validate() error {
	if err := ValidateCoordinates(a.Latitude, a.Longitude); err != nil {
		return err
	}
	if !a.ReportType.Valid() {
		return &ValidationError{Field: "report_type", Reason: "unknown report type: " + string(a.ReportType)}
	}
	if a.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "missing"}
	}
	return nil
}

// ReportResponse is returned for every submit-report call, including
// rate-limited ones (Success=false, no ReportID).
type ReportResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ReportID string `json:"report_id,omitempty"`
}

// NearbyCamera is a camera annotated with the distance from the query point.
type NearbyCamera struct {
	SpeedCamera
	DistanceMeters int `json:"distance_meters"`
}

// NearbyReport is a live report annotated with distance and remaining TTL.
type NearbyReport struct {
	CommunityReport
	DistanceMeters   int `json:"distance_meters"`
	ExpiresInMinutes int `json:"expires_in_minutes"`
}

// NearbyResponse is the combined driving-mode payload. Both sequences are
// ascending by distance_meters.
type NearbyResponse struct {
	Cameras []NearbyCamera `json:"cameras"`
	Reports []NearbyReport `json:"reports"`
}

// Settings is the admin-adjustable engine configuration, stored as a single
// row and read by every submission and query.
type Settings struct {
	MobileCameraTTLMinutes     int `json:"mobile_camera_ttl_minutes"`
	PoliceCheckTTLMinutes      int `json:"police_check_ttl_minutes"`
	DuplicateRadiusMeters      int `json:"duplicate_radius_meters"`
	DuplicateTimeWindowMinutes int `json:"duplicate_time_window_minutes"`
	RateLimitMinutes           int `json:"rate_limit_minutes"`
}

// DefaultSettings returns the defaults used until an admin writes the
// settings row.
func DefaultSettings() Settings {
	return Settings{
		MobileCameraTTLMinutes:     75,
		PoliceCheckTTLMinutes:      52,
		DuplicateRadiusMeters:      200,
		DuplicateTimeWindowMinutes: 15,
		RateLimitMinutes:           5,
	}
}

func (s *Settings) Validate() error {
	if s.MobileCameraTTLMinutes <= 0 || s.PoliceCheckTTLMinutes <= 0 {
		return &ValidationError{Field: "ttl_minutes", Reason: "must be positive"}
	}
	if s.DuplicateRadiusMeters <= 0 {
		return &ValidationError{Field: "duplicate_radius_meters", Reason: "must be positive"}
	}
	if s.DuplicateTimeWindowMinutes <= 0 {
		return &ValidationError{Field: "duplicate_time_window_minutes", Reason: "must be positive"}
	}
	if s.RateLimitMinutes <= 0 {
		return &ValidationError{Field: "rate_limit_minutes", Reason: "must be positive"}
	}
	return nil
}

// TTLMinutes returns the configured time-to-live for the given report type.
func (s *Settings) TTLMinutes(t ReportType) int {
	if t == ReportMobileCamera {
		return s.MobileCameraTTLMinutes
	}
	return s.PoliceCheckTTLMinutes
}

// ValidateCoordinates rejects WGS-84 positions outside the valid ranges.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return &ValidationError{Field: "latitude", Reason: "must be within [-90, 90]"}
	}
	if lon < -180 || lon > 180 {
		return &ValidationError{Field: "longitude", Reason: "must be within [-180, 180]"}
	}
	return nil
}
