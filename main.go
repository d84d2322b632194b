package main

import (
	"context"
	"time"

	"drivesafe/config"
	"drivesafe/database"
	"drivesafe/handlers"
	"drivesafe/middleware"
	"drivesafe/rabbitmq"
	"drivesafe/utils"
	ws "drivesafe/websocket"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

const (
	EndPointRoot          = "/"
	EndPointHealth        = "/health"
	EndPointCamerasNearby = "/cameras/nearby"
	EndPointCamerasAll    = "/cameras/all"
	EndPointCameras       = "/cameras"
	EndPointCamera        = "/cameras/:id"
	EndPointCamerasImport = "/cameras/import"
	EndPointReports       = "/reports"
	EndPointReportsNearby = "/reports/nearby"
	EndPointNearby        = "/nearby"
	EndPointSettings      = "/settings"
	EndPointSeed          = "/seed"
	EndPointWSReports     = "/ws/reports"
	EndPointWSStats       = "/ws/stats"
)

// Reports expired longer than this are physically deleted by the hourly
// sweep. Correctness never depends on the sweep; every read filters on
// expires_at.
const expiredReportGrace = 24 * time.Hour

func main() {
	cfg := config.Load()

	log.Info("Starting the DriveSafe service...")

	db, err := utils.DBConnect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.InitSchema(db); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	// Initialize services
	settingsService := database.NewSettingsService(db)
	camerasService := database.NewCamerasService(db)
	reportsService := database.NewReportsService(db, settingsService)

	// Optional RabbitMQ publishing for analytics
	var publisher *rabbitmq.Publisher
	if cfg.AMQPURL != "" {
		publisher, err = rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, "report.accepted")
		if err != nil {
			log.Errorf("Failed to initialize RabbitMQ publisher, continuing without: %v", err)
		} else {
			defer publisher.Close()
		}
	}

	// Live report push
	hub := ws.NewHub()
	go hub.Run()

	// Hourly cleanup of long-expired report rows
	sweeper := cron.New()
	sweeper.AddFunc("@hourly", func() {
		deleted, err := reportsService.DeleteExpired(context.Background(), expiredReportGrace)
		if err != nil {
			log.Errorf("Failed to sweep expired reports: %v", err)
			return
		}
		if deleted > 0 {
			log.Infof("Swept %d expired report rows", deleted)
		}
	})
	sweeper.Start()
	defer sweeper.Stop()

	handler := handlers.NewHandler(camerasService, reportsService, settingsService, hub, publisher)

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowOrigins:     []string{"*"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	api.GET(EndPointRoot, handler.Root)
	api.GET(EndPointHealth, handler.HealthCheck)
	api.GET(EndPointCamerasNearby, handler.GetNearbyCameras)
	api.GET(EndPointCamerasAll, handler.GetAllCameras)
	api.GET(EndPointReportsNearby, handler.GetNearbyReports)
	api.GET(EndPointNearby, handler.GetAllNearby)
	api.GET(EndPointSettings, handler.GetSettings)
	api.GET(EndPointWSReports, handler.ListenReports)
	api.GET(EndPointWSStats, handler.WebSocketStats)
	api.POST(EndPointReports, middleware.SubmitThrottleMiddleware(cfg.SubmitRPS, cfg.SubmitBurst), handler.CreateReport)

	admin := api.Group("", middleware.AdminAuthMiddleware(cfg.JWTSecret))
	admin.POST(EndPointCameras, handler.CreateCamera)
	admin.PUT(EndPointCamera, handler.UpdateCamera)
	admin.POST(EndPointCamerasImport, handler.ImportCameras)
	admin.POST(EndPointSettings, handler.UpdateSettings)
	admin.POST(EndPointSeed, handler.SeedCameras)

	router.Run(":" + cfg.Port)
	log.Info("Finished the service. Should not ever being seen.")
}
