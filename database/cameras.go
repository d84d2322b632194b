package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"drivesafe/geo"
	"drivesafe/models"

	"github.com/apex/log"
	"github.com/google/uuid"
	geojson "github.com/paulmach/go.geojson"
)

// CamerasService is the durable store for static speed cameras.
type CamerasService struct {
	db  *sql.DB
	now func() time.Time
}

func NewCamerasService(db *sql.DB) *CamerasService {
	return &CamerasService{db: db, now: time.Now}
}

// CreateCamera validates and inserts a new camera (admin).
func (s *CamerasService) CreateCamera(ctx context.Context, args *models.CreateCameraArgs) (*models.SpeedCamera, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Second)
	camera := &models.SpeedCamera{
		ID:           uuid.New().String(),
		Latitude:     args.Latitude,
		Longitude:    args.Longitude,
		CameraType:   args.CameraType,
		RoadName:     args.RoadName,
		SpeedLimit:   args.SpeedLimit,
		Direction:    args.Direction,
		Confidence:   100,
		LastVerified: now,
		IsActive:     true,
		CreatedAt:    now,
	}

	result, err := s.db.ExecContext(ctx, `INSERT
		INTO cameras (id, latitude, longitude, camera_type, road_name, speed_limit, direction, confidence, last_verified, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		camera.ID, camera.Latitude, camera.Longitude, camera.CameraType,
		nullString(camera.RoadName), nullInt(camera.SpeedLimit), nullString(camera.Direction),
		camera.Confidence, camera.LastVerified, camera.IsActive, camera.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert camera: %w", err)
	}
	logResult("createCamera", result, err, true)

	log.Infof("Created %s camera %s at %f,%f", camera.CameraType, camera.ID, camera.Latitude, camera.Longitude)
	return camera, nil
}

// UpdateCamera applies an admin edit to an existing camera. Deactivation
// goes through IsActive rather than deletion.
func (s *CamerasService) UpdateCamera(ctx context.Context, id string, args *models.CreateCameraArgs, isActive bool) error {
	if err := args.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE cameras
		SET latitude = ?, longitude = ?, camera_type = ?, road_name = ?, speed_limit = ?, direction = ?, is_active = ?, last_verified = ?
		WHERE id = ?`,
		args.Latitude, args.Longitude, args.CameraType,
		nullString(args.RoadName), nullInt(args.SpeedLimit), nullString(args.Direction),
		isActive, s.now().UTC().Truncate(time.Second), id)
	if err != nil {
		return fmt.Errorf("failed to update camera %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get update result: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListCameras returns cameras in insertion order.
func (s *CamerasService) ListCameras(ctx context.Context, activeOnly bool) ([]models.SpeedCamera, error) {
	query := `SELECT id, latitude, longitude, camera_type, road_name, speed_limit, direction, confidence, last_verified, is_active, created_at
		FROM cameras`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	defer rows.Close()

	result := []models.SpeedCamera{}
	for rows.Next() {
		camera, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *camera)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cameras: %w", err)
	}
	return result, nil
}

// NearbyCameras returns active cameras within radiusKm of the query point,
// annotated with distance, ascending by distance.
func (s *CamerasService) NearbyCameras(ctx context.Context, lat, lon, radiusKm float64) ([]models.NearbyCamera, error) {
	if err := models.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	bbox := geo.BoundingBoxAround(lat, lon, radiusKm)
	rows, err := s.db.QueryContext(ctx, `SELECT id, latitude, longitude, camera_type, road_name, speed_limit, direction, confidence, last_verified, is_active, created_at
		FROM cameras
		WHERE is_active = true
		 AND latitude >= ? AND latitude <= ? AND longitude >= ? AND longitude <= ?`,
		bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby cameras: %w", err)
	}
	defer rows.Close()

	result := []models.NearbyCamera{}
	for rows.Next() {
		camera, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		distance := geo.HaversineMeters(lat, lon, camera.Latitude, camera.Longitude)
		if distance > radiusKm*1000 {
			continue
		}
		result = append(result, models.NearbyCamera{
			SpeedCamera:    *camera,
			DistanceMeters: int(math.Round(distance)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan nearby cameras: %w", err)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DistanceMeters != result[j].DistanceMeters {
			return result[i].DistanceMeters < result[j].DistanceMeters
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// ImportCameras bulk-imports cameras from a GeoJSON FeatureCollection of
// points with camera_type/road_name/speed_limit/direction properties
// (admin). The whole batch is rejected on the first invalid feature.
func (s *CamerasService) ImportCameras(ctx context.Context, fc *geojson.FeatureCollection) (int, error) {
	argsList := make([]*models.CreateCameraArgs, 0, len(fc.Features))
	for i, feature := range fc.Features {
		if feature.Geometry == nil || !feature.Geometry.IsPoint() {
			return 0, &models.ValidationError{
				Field:  fmt.Sprintf("features[%d]", i),
				Reason: "geometry must be a Point",
			}
		}
		args := &models.CreateCameraArgs{
			Longitude:  feature.Geometry.Point[0],
			Latitude:   feature.Geometry.Point[1],
			CameraType: models.CameraType(stringProp(feature, "camera_type")),
			RoadName:   stringProp(feature, "road_name"),
			Direction:  stringProp(feature, "direction"),
		}
		if limit, err := feature.PropertyInt("speed_limit"); err == nil {
			args.SpeedLimit = limit
		}
		if err := args.Validate(); err != nil {
			return 0, &models.ValidationError{
				Field:  fmt.Sprintf("features[%d]", i),
				Reason: err.Error(),
			}
		}
		argsList = append(argsList, args)
	}

	for _, args := range argsList {
		if _, err := s.CreateCamera(ctx, args); err != nil {
			return 0, err
		}
	}
	log.Infof("Imported %d cameras from GeoJSON", len(argsList))
	return len(argsList), nil
}

func stringProp(feature *geojson.Feature, key string) string {
	v, err := feature.PropertyString(key)
	if err != nil {
		return ""
	}
	return v
}

func scanCamera(rows *sql.Rows) (*models.SpeedCamera, error) {
	camera := &models.SpeedCamera{}
	var roadName, direction sql.NullString
	var speedLimit sql.NullInt64
	var lastVerified sql.NullTime
	if err := rows.Scan(
		&camera.ID, &camera.Latitude, &camera.Longitude, &camera.CameraType,
		&roadName, &speedLimit, &direction, &camera.Confidence,
		&lastVerified, &camera.IsActive, &camera.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan camera row: %w", err)
	}
	camera.RoadName = roadName.String
	camera.Direction = direction.String
	camera.SpeedLimit = int(speedLimit.Int64)
	camera.LastVerified = lastVerified.Time
	return camera, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
