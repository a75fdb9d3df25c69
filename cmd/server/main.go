package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"time"

	"smart-attendance-go/config"
	"smart-attendance-go/internal/api/handlers"
	"smart-attendance-go/internal/api/middleware"
	"smart-attendance-go/internal/attendance"
	"smart-attendance-go/internal/cleanup"
	"smart-attendance-go/internal/core/gallery"
	"smart-attendance-go/internal/core/matcher"
	"smart-attendance-go/internal/core/session"
	"smart-attendance-go/internal/db"
	"smart-attendance-go/internal/db/repository"
	"smart-attendance-go/internal/integrations/homeassistant"
	"smart-attendance-go/internal/integrations/mqtt"
	"smart-attendance-go/internal/integrations/opencv"
	"smart-attendance-go/internal/logger"
	"smart-attendance-go/internal/server/sse"
	"smart-attendance-go/internal/services"
	"smart-attendance-go/internal/util/timezone"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to fully initialize logger: %v", err)
	}

	timezone.Initialize(cfg.Server.Timezone)

	// Sighting database
	database, err := db.Initialize(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	sightings := repository.NewSQLiteRepository(database)

	// Gallery of enrolled faces
	galleryStore := gallery.NewStore(cfg.Gallery.File, cfg.Gallery.ReferenceDir)
	galleryStore.Load()
	log.Infof("Gallery loaded with %d enrolled identit(ies)", galleryStore.Count())

	// Attendance ledger
	ledger, err := attendance.NewLedger(cfg.Attendance.Dir)
	if err != nil {
		log.Fatalf("Failed to initialize attendance ledger: %v", err)
	}

	// Recognition pipeline
	faceMatcher := matcher.New(cfg.Matcher.Threshold)
	cooldown := time.Duration(cfg.Session.CooldownSeconds) * time.Second
	debouncer := session.NewDebouncer(cooldown)
	orchestrator := session.NewOrchestrator(faceMatcher, galleryStore, ledger, debouncer)

	// Face detector; the server stays up without a cascade so enrollment
	// via upload and attendance queries keep working.
	var detector *opencv.FaceDetector
	if d, err := opencv.NewFaceDetector(cfg.Camera); err != nil {
		log.Warnf("Face detector unavailable: %v. Camera sessions are disabled.", err)
	} else {
		detector = d
		defer detector.Close()
	}

	// SSE hub for browser updates
	sseHub := sse.NewHub()
	go sseHub.Run()

	// MQTT and Home Assistant integrations
	var mqttClient *mqtt.Client
	var haPublisher *homeassistant.Publisher
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.NewClient(cfg.MQTT)
		if err := mqttClient.Start(); err != nil {
			log.Warnf("Failed to start MQTT client: %v. Continuing without MQTT.", err)
			mqttClient = nil
		} else {
			defer mqttClient.Stop()
			if cfg.MQTT.HomeAssistant.Enabled {
				haPublisher = homeassistant.NewPublisher(mqttClient, cfg)
				haPublisher.PublishDiscovery(galleryStore.List())
				haPublisher.ResetPresence(galleryStore.List())
			}
		}
	} else {
		log.Info("MQTT is disabled in config")
	}

	// Downstream consumers of processed observations. Nil pointers must not
	// become non-nil interfaces, hence the explicit guards.
	var attendancePub services.AttendancePublisher
	var presencePub services.PresencePublisher
	if mqttClient != nil {
		attendancePub = mqttClient
	}
	if haPublisher != nil {
		presencePub = haPublisher
	}
	orchestrator.AddObserver(services.NewSightingRecorder(sightings, cfg.Server.SnapshotDir))
	orchestrator.AddObserver(services.NewNotifier(sseHub, attendancePub, presencePub))

	// Camera session wiring
	streamer := opencv.NewStreamer()
	frameInterval := time.Duration(cfg.Session.FrameIntervalMs) * time.Millisecond
	manager := session.NewManager(orchestrator, func() (*session.Runner, error) {
		if detector == nil {
			return nil, session.ErrCameraUnavailable
		}
		camera, err := opencv.OpenCamera(cfg.Camera)
		if err != nil {
			return nil, err
		}
		return &session.Runner{
			Source:       camera,
			Detector:     detector,
			Orchestrator: orchestrator,
			Interval:     frameInterval,
			OnFrame:      streamer.Update,
		}, nil
	})

	// Retention cleanup for sightings and snapshots
	cleanupService := cleanup.NewService(sightings, cfg.Cleanup.RetentionDays, cfg.Server.SnapshotDir, 24*time.Hour)
	if cleanupService != nil {
		cleanupService.StartBackgroundCleanup()
		defer cleanupService.StopBackgroundCleanup()
	}

	// HTTP server
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	secret := []byte(cfg.Server.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			log.Fatalf("Failed to generate session secret: %v", err)
		}
		log.Warn("No session secret configured, using a random one; session cookies will not survive a restart")
	}
	store := cookie.NewStore(secret)
	router.Use(sessions.Sessions("attendance_session", store))
	router.Use(middleware.I18n(cfg.I18n))

	webHandler, err := handlers.NewWebHandler(cfg, galleryStore, ledger, manager, sseHub, streamer)
	if err != nil {
		log.Fatalf("Failed to initialize web handlers: %v", err)
	}
	webHandler.RegisterRoutes(router)

	apiHandler := handlers.NewAPIHandler(cfg, galleryStore, faceMatcher, detector, ledger, orchestrator, manager, sightings, sseHub, haPublisher)
	apiHandler.RegisterRoutes(router.Group("/api"))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Infof("Starting server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
