package handlers

import (
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"

	"smart-attendance-go/config"
	"smart-attendance-go/internal/api/middleware"
	"smart-attendance-go/internal/attendance"
	"smart-attendance-go/internal/core/gallery"
	"smart-attendance-go/internal/core/matcher"
	"smart-attendance-go/internal/core/session"
	"smart-attendance-go/internal/db/repository"
	"smart-attendance-go/internal/integrations/homeassistant"
	"smart-attendance-go/internal/integrations/opencv"
	"smart-attendance-go/internal/server/sse"
	"smart-attendance-go/internal/util/timezone"
	"smart-attendance-go/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// APIHandler serves the JSON API: identity enrollment, recognition,
// attendance queries and session control.
type APIHandler struct {
	cfg          *config.Config
	gallery      *gallery.Store
	matcher      *matcher.Matcher
	detector     *opencv.FaceDetector
	ledger       *attendance.Ledger
	orchestrator *session.Orchestrator
	manager      *session.Manager
	sightings    repository.SightingRepository
	sseHub       *sse.Hub
	haPublisher  *homeassistant.Publisher
}

// NewAPIHandler creates a new API handler. The detector and haPublisher may
// be nil when the camera or MQTT integration is disabled.
func NewAPIHandler(
	cfg *config.Config,
	galleryStore *gallery.Store,
	faceMatcher *matcher.Matcher,
	detector *opencv.FaceDetector,
	ledger *attendance.Ledger,
	orchestrator *session.Orchestrator,
	manager *session.Manager,
	sightings repository.SightingRepository,
	sseHub *sse.Hub,
	haPublisher *homeassistant.Publisher,
) *APIHandler {
	return &APIHandler{
		cfg:          cfg,
		gallery:      galleryStore,
		matcher:      faceMatcher,
		detector:     detector,
		ledger:       ledger,
		orchestrator: orchestrator,
		manager:      manager,
		sightings:    sightings,
		sseHub:       sseHub,
		haPublisher:  haPublisher,
	}
}

// RegisterRoutes registers all API routes.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Identity endpoints
	router.GET("/identities", h.ListIdentities)
	router.POST("/identities", h.EnrollIdentity)
	router.PUT("/identities/:name", h.UpdateIdentity)
	router.DELETE("/identities/:name", h.DeleteIdentity)
	router.GET("/identities/:name/reference", h.GetReferenceImage)

	// Recognition endpoint
	router.POST("/identify", h.Identify)

	// Attendance endpoints
	router.GET("/attendance/today", h.GetAttendanceToday)
	router.GET("/attendance/date/:date", h.GetAttendanceByDate)
	router.GET("/attendance/history/:name", h.GetAttendanceHistory)
	router.GET("/attendance/statistics", h.GetAttendanceStatistics)
	router.POST("/attendance/export", h.ExportAttendance)

	// Session endpoints
	router.POST("/session/start", h.StartSession)
	router.POST("/session/stop", h.StopSession)
	router.POST("/session/reset", h.ResetSession)
	router.GET("/session/status", h.GetSessionStatus)

	// Sighting endpoints
	router.GET("/sightings", h.ListSightings)
	router.GET("/sightings/summary", h.GetSightingSummaries)

	// Camera endpoints
	router.GET("/cameras", h.ListCameras)

	// System endpoint
	router.GET("/status", h.GetStatus)
}

// decodeUpload reads the "file" form field and decodes it as an image.
func decodeUpload(c *gin.Context) (image.Image, bool) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": middleware.Translate(c, "errors.no_file"),
		})
		return nil, false
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": middleware.Translate(c, "errors.invalid_image"),
		})
		return nil, false
	}
	return img, true
}

// extractFace validates that the upload contains exactly one face and
// returns the cropped region. Without a detector the whole image is used,
// which keeps enrollment usable on headless test setups.
func (h *APIHandler) extractFace(c *gin.Context, img image.Image) (image.Image, bool) {
	if h.detector == nil {
		return img, true
	}

	box, err := h.detector.DetectSingle(img)
	if err != nil {
		switch {
		case errors.Is(err, opencv.ErrNoFace):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": middleware.Translate(c, "errors.no_face"),
			})
		case errors.Is(err, opencv.ErrMultipleFaces):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": middleware.Translate(c, "errors.multiple_faces"),
			})
		default:
			log.WithError(err).Error("Face detection failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": middleware.Translate(c, "errors.detection_failed"),
			})
		}
		return nil, false
	}
	return session.CropFace(img, box), true
}

// ListIdentities returns the enrolled identities.
func (h *APIHandler) ListIdentities(c *gin.Context) {
	names := h.gallery.List()
	identities := make([]gin.H, 0, len(names))
	for _, name := range names {
		identities = append(identities, gin.H{
			"name":            name,
			"reference_image": "/api/identities/" + name + "/reference",
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"identities": identities,
		"count":      len(names),
	})
}

// EnrollIdentity registers a new identity from an uploaded capture.
func (h *APIHandler) EnrollIdentity(c *gin.Context) {
	name := c.PostForm("name")
	img, ok := decodeUpload(c)
	if !ok {
		return
	}

	face, ok := h.extractFace(c, img)
	if !ok {
		return
	}

	if err := h.gallery.Add(name, face, img); err != nil {
		switch {
		case errors.Is(err, gallery.ErrInvalidName):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": middleware.Translate(c, "errors.invalid_name"),
			})
		case errors.Is(err, gallery.ErrAlreadyEnrolled):
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"message": middleware.Translate(c, "errors.already_enrolled"),
			})
		default:
			log.WithError(err).Errorf("Failed to enroll identity %s", name)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": middleware.Translate(c, "errors.enrollment_failed"),
			})
		}
		return
	}

	if h.haPublisher != nil {
		h.haPublisher.PublishDiscovery(h.gallery.List())
	}

	log.Infof("Enrolled identity: %s", name)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": middleware.Translate(c, "enrollment.success"),
		"name":    name,
	})
}

// UpdateIdentity replaces the stored template of an existing identity.
func (h *APIHandler) UpdateIdentity(c *gin.Context) {
	name := c.Param("name")
	img, ok := decodeUpload(c)
	if !ok {
		return
	}

	face, ok := h.extractFace(c, img)
	if !ok {
		return
	}

	if err := h.gallery.Update(name, face); err != nil {
		if errors.Is(err, gallery.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": middleware.Translate(c, "errors.identity_not_found"),
			})
			return
		}
		log.WithError(err).Errorf("Failed to update identity %s", name)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": middleware.Translate(c, "errors.enrollment_failed"),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": middleware.Translate(c, "enrollment.updated"),
		"name":    name,
	})
}

// DeleteIdentity removes an identity from the gallery. Attendance records
// already written for the identity are kept.
func (h *APIHandler) DeleteIdentity(c *gin.Context) {
	name := c.Param("name")

	if err := h.gallery.Delete(name); err != nil {
		if errors.Is(err, gallery.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": middleware.Translate(c, "errors.identity_not_found"),
			})
			return
		}
		log.WithError(err).Errorf("Failed to delete identity %s", name)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": middleware.Translate(c, "errors.deletion_failed"),
		})
		return
	}

	if h.haPublisher != nil {
		h.haPublisher.RemoveDiscovery(name)
	}

	log.Infof("Deleted identity: %s", name)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": middleware.Translate(c, "enrollment.deleted"),
	})
}

// GetReferenceImage serves the stored reference capture of an identity.
func (h *APIHandler) GetReferenceImage(c *gin.Context) {
	name := c.Param("name")

	path, err := h.gallery.ReferenceImagePath(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": middleware.Translate(c, "errors.identity_not_found"),
		})
		return
	}
	c.File(path)
}

// Identify matches an uploaded image against the gallery without touching
// the attendance log.
func (h *APIHandler) Identify(c *gin.Context) {
	img, ok := decodeUpload(c)
	if !ok {
		return
	}

	face, ok := h.extractFace(c, img)
	if !ok {
		return
	}

	result := h.matcher.Identify(face, h.gallery.Entries())
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"name":       result.Name,
		"score":      result.Score,
		"recognized": result.Known(),
	})
}

// GetAttendanceToday returns today's attendance records.
func (h *APIHandler) GetAttendanceToday(c *gin.Context) {
	date := attendance.DateOf(timezone.Now())
	h.respondDay(c, date)
}

// GetAttendanceByDate returns the records of a specific day.
func (h *APIHandler) GetAttendanceByDate(c *gin.Context) {
	h.respondDay(c, c.Param("date"))
}

func (h *APIHandler) respondDay(c *gin.Context, date string) {
	records := h.ledger.Day(date)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"date":    date,
		"records": records,
		"count":   len(records),
	})
}

// GetAttendanceHistory returns the attendance history of one identity,
// newest day first. The optional "days" query limits how far back to look.
func (h *APIHandler) GetAttendanceHistory(c *gin.Context) {
	name := c.Param("name")
	days, _ := strconv.Atoi(c.DefaultQuery("days", "0"))

	records := h.ledger.History(name, days)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"name":    name,
		"records": records,
		"count":   len(records),
	})
}

// GetAttendanceStatistics returns aggregate attendance figures.
func (h *APIHandler) GetAttendanceStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"statistics": h.ledger.GetStatistics(),
	})
}

// ExportAttendance flattens the attendance log into a single CSV file. An
// optional start/end date range (inclusive) narrows the export.
func (h *APIHandler) ExportAttendance(c *gin.Context) {
	var req struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	// An empty body means a full export.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": middleware.Translate(c, "errors.invalid_request"),
			})
			return
		}
	}

	path, err := h.ledger.Export(h.cfg.Attendance.ExportDir, req.Start, req.End, timezone.Now())
	if err != nil {
		if errors.Is(err, attendance.ErrNoRecords) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": middleware.Translate(c, "export.no_records"),
			})
			return
		}
		log.WithError(err).Error("Attendance export failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": middleware.Translate(c, "export.failed"),
		})
		return
	}

	log.Infof("Exported attendance to %s", path)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": middleware.Translate(c, "export.success"),
		"file":    path,
	})
}

// StartSession starts the recognition loop.
func (h *APIHandler) StartSession(c *gin.Context) {
	if h.gallery.Count() == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": middleware.Translate(c, "session.empty_gallery"),
		})
		return
	}

	if err := h.manager.Start(); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionRunning):
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"message": middleware.Translate(c, "session.already_running"),
			})
		case errors.Is(err, session.ErrCameraUnavailable), errors.Is(err, opencv.ErrNoCamera):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"message": middleware.Translate(c, "session.camera_unavailable"),
			})
		default:
			log.WithError(err).Error("Failed to start session")
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": middleware.Translate(c, "session.start_failed"),
			})
		}
		return
	}

	log.Info("Recognition session started")
	h.sseHub.BroadcastSessionState("started", timezone.Now())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": middleware.Translate(c, "session.started"),
	})
}

// StopSession stops the recognition loop.
func (h *APIHandler) StopSession(c *gin.Context) {
	if err := h.manager.Stop(); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": middleware.Translate(c, "session.not_running"),
		})
		return
	}

	log.Info("Recognition session stopped")
	h.sseHub.BroadcastSessionState("stopped", timezone.Now())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": middleware.Translate(c, "session.stopped"),
	})
}

// ResetSession clears the in-memory recognition cache so identities can be
// re-recorded immediately. The attendance log itself is untouched.
func (h *APIHandler) ResetSession(c *gin.Context) {
	h.manager.Reset()
	h.sseHub.BroadcastSessionState("reset", timezone.Now())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": middleware.Translate(c, "session.reset"),
	})
}

// GetSessionStatus reports whether the recognition loop is running and who
// has been recognized since the last reset.
func (h *APIHandler) GetSessionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"running":          h.manager.Running(),
		"recognized_today": h.orchestrator.RecognizedToday(),
		"enrolled":         h.gallery.Count(),
	})
}

// ListSightings returns recent sightings, optionally filtered by identity.
func (h *APIHandler) ListSightings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	name := c.Query("name")

	var (
		sightings interface{}
		err       error
	)
	if name != "" {
		sightings, err = h.sightings.ByName(name, limit)
	} else {
		sightings, err = h.sightings.Recent(limit)
	}
	if err != nil {
		log.WithError(err).Error("Failed to fetch sightings")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": middleware.Translate(c, "errors.sightings_unavailable"),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sightings": sightings,
	})
}

// GetSightingSummaries returns per-identity sighting counts.
func (h *APIHandler) GetSightingSummaries(c *gin.Context) {
	summaries, err := h.sightings.Summaries()
	if err != nil {
		log.WithError(err).Error("Failed to fetch sighting summaries")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": middleware.Translate(c, "errors.sightings_unavailable"),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"summaries": summaries,
	})
}

// GetStatus reports overall health: enrolled identities, session state and
// host metrics.
func (h *APIHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"timestamp":        timezone.Now(),
		"enrolled":         h.gallery.Count(),
		"session_running":  h.manager.Running(),
		"camera_available": h.detector != nil,
		"system":           utils.GetSystemStats(),
	})
}

// ListCameras probes for usable capture devices.
func (h *APIHandler) ListCameras(c *gin.Context) {
	available := opencv.ListCameras()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"cameras": available,
		"count":   len(available),
	})
}
