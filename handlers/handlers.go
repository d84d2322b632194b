package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"drivesafe/database"
	"drivesafe/models"
	"drivesafe/rabbitmq"
	ws "drivesafe/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	geojson "github.com/paulmach/go.geojson"
)

const (
	serviceName    = "DriveSafe UK API"
	serviceVersion = "1.0.0"
)

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	cameras  *database.CamerasService
	reports  *database.ReportsService
	settings *database.SettingsService
	hub      *ws.Hub
	// publisher is nil when AMQP publishing is disabled.
	publisher *rabbitmq.Publisher
}

func NewHandler(cameras *database.CamerasService, reports *database.ReportsService, settings *database.SettingsService, hub *ws.Hub, publisher *rabbitmq.Publisher) *Handler {
	return &Handler{
		cameras:   cameras,
		reports:   reports,
		settings:  settings,
		hub:       hub,
		publisher: publisher,
	}
}

// Root returns the API name and version.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": serviceName, "version": serviceVersion})
}

// HealthCheck returns a simple health status
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
}

// CreateReport handles report submission: rate limit, merge-or-create,
// then push/publish the accepted report.
func (h *Handler) CreateReport(c *gin.Context) {
	args := &models.CreateReportArgs{}
	if err := c.BindJSON(args); err != nil {
		log.Errorf("Failed to get the argument in /reports call: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read JSON input"})
		return
	}

	resp, report, err := h.reports.SubmitReport(c.Request.Context(), args)
	if err != nil {
		var rateLimited *models.RateLimitedError
		if errors.As(err, &rateLimited) {
			// Expected condition, not a fault; the app switches on success.
			c.JSON(http.StatusOK, models.ReportResponse{
				Success: false,
				Message: rateLimited.Message(),
			})
			return
		}
		var invalid *models.ValidationError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
			return
		}
		log.Errorf("Failed to submit report: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save the report"})
		return
	}

	h.hub.Broadcast(report)
	go h.publishReport(report)

	c.JSON(http.StatusOK, resp)
}

// publishReport forwards an accepted report to RabbitMQ for analytics.
// Failures are logged and never affect the submission.
func (h *Handler) publishReport(report *models.CommunityReport) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(report); err != nil {
		log.Errorf("Failed to publish report %s to RabbitMQ: %v", report.ID, err)
		return
	}
	log.Infof("Published report %s to RabbitMQ", report.ID)
}

// GetNearbyReports returns live reports around the query point.
func (h *Handler) GetNearbyReports(c *gin.Context) {
	lat, lon, radiusKm, ok := h.queryPoint(c)
	if !ok {
		return
	}

	reports, err := h.reports.NearbyReports(c.Request.Context(), lat, lon, radiusKm)
	if err != nil {
		h.writeQueryError(c, "nearby reports", err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

// GetNearbyCameras returns active cameras around the query point.
func (h *Handler) GetNearbyCameras(c *gin.Context) {
	lat, lon, radiusKm, ok := h.queryPoint(c)
	if !ok {
		return
	}

	cameras, err := h.cameras.NearbyCameras(c.Request.Context(), lat, lon, radiusKm)
	if err != nil {
		h.writeQueryError(c, "nearby cameras", err)
		return
	}
	c.JSON(http.StatusOK, cameras)
}

// GetAllNearby is the combined driving-mode query: cameras and live reports
// in one call, both ascending by distance.
func (h *Handler) GetAllNearby(c *gin.Context) {
	lat, lon, radiusKm, ok := h.queryPoint(c)
	if !ok {
		return
	}

	cameras, err := h.cameras.NearbyCameras(c.Request.Context(), lat, lon, radiusKm)
	if err != nil {
		h.writeQueryError(c, "nearby cameras", err)
		return
	}
	reports, err := h.reports.NearbyReports(c.Request.Context(), lat, lon, radiusKm)
	if err != nil {
		h.writeQueryError(c, "nearby reports", err)
		return
	}

	c.JSON(http.StatusOK, models.NearbyResponse{Cameras: cameras, Reports: reports})
}

// CreateCamera adds a camera (admin).
func (h *Handler) CreateCamera(c *gin.Context) {
	args := &models.CreateCameraArgs{}
	if err := c.BindJSON(args); err != nil {
		log.Errorf("Failed to get the argument in /cameras call: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read JSON input"})
		return
	}

	camera, err := h.cameras.CreateCamera(c.Request.Context(), args)
	if err != nil {
		var invalid *models.ValidationError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
			return
		}
		log.Errorf("Failed to create camera: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save the camera"})
		return
	}
	c.JSON(http.StatusOK, camera)
}

// UpdateCamera applies an admin edit; deactivation sets is_active=false.
func (h *Handler) UpdateCamera(c *gin.Context) {
	id := c.Param("id")
	args := &struct {
		models.CreateCameraArgs
		IsActive *bool `json:"is_active"`
	}{}
	if err := c.BindJSON(args); err != nil {
		log.Errorf("Failed to get the argument in /cameras/:id call: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read JSON input"})
		return
	}
	isActive := true
	if args.IsActive != nil {
		isActive = *args.IsActive
	}

	err := h.cameras.UpdateCamera(c.Request.Context(), id, &args.CreateCameraArgs, isActive)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
			return
		}
		var invalid *models.ValidationError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
			return
		}
		log.Errorf("Failed to update camera %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update the camera"})
		return
	}
	c.Status(http.StatusOK)
}

// GetAllCameras lists every active camera (admin).
func (h *Handler) GetAllCameras(c *gin.Context) {
	cameras, err := h.cameras.ListCameras(c.Request.Context(), true)
	if err != nil {
		log.Errorf("Failed to list cameras: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list cameras"})
		return
	}
	c.JSON(http.StatusOK, cameras)
}

// ImportCameras bulk-imports cameras from a GeoJSON FeatureCollection (admin).
func (h *Handler) ImportCameras(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		log.Errorf("Failed to parse GeoJSON in /cameras/import call: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid GeoJSON"})
		return
	}

	count, err := h.cameras.ImportCameras(c.Request.Context(), fc)
	if err != nil {
		var invalid *models.ValidationError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
			return
		}
		log.Errorf("Failed to import cameras: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to import cameras"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Imported cameras", "count": count})
}

// SeedCameras loads the sample UK dataset (admin, initial setup).
func (h *Handler) SeedCameras(c *gin.Context) {
	count, err := h.cameras.SeedSampleCameras(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to seed cameras: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to seed cameras"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Seeded " + strconv.Itoa(count) + " sample cameras",
		"count":   count,
	})
}

// GetSettings returns the engine configuration.
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to read settings: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings replaces the engine configuration (admin).
func (h *Handler) UpdateSettings(c *gin.Context) {
	settings := &models.Settings{}
	if err := c.BindJSON(settings); err != nil {
		log.Errorf("Failed to get the argument in /settings call: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read JSON input"})
		return
	}

	if err := h.settings.Update(c.Request.Context(), settings); err != nil {
		var invalid *models.ValidationError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
			return
		}
		log.Errorf("Failed to update settings: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// queryPoint parses the lat/lon/radius_km query params shared by the nearby
// endpoints. radius_km defaults to 5.
func (h *Handler) queryPoint(c *gin.Context) (lat, lon, radiusKm float64, ok bool) {
	var err error
	if lat, err = strconv.ParseFloat(c.Query("lat"), 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lat: " + err.Error()})
		return 0, 0, 0, false
	}
	if lon, err = strconv.ParseFloat(c.Query("lon"), 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lon: " + err.Error()})
		return 0, 0, 0, false
	}
	radiusKm = 5.0
	if raw, has := c.GetQuery("radius_km"); has {
		if radiusKm, err = strconv.ParseFloat(raw, 64); err != nil || radiusKm <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid radius_km"})
			return 0, 0, 0, false
		}
	}
	return lat, lon, radiusKm, true
}

func (h *Handler) writeQueryError(c *gin.Context, what string, err error) {
	var invalid *models.ValidationError
	if errors.As(err, &invalid) {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
		return
	}
	log.Errorf("Failed to query %s: %v", what, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query " + what})
}
