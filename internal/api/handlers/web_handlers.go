package handlers

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"smart-attendance-go/config"
	"smart-attendance-go/internal/api/middleware"
	"smart-attendance-go/internal/attendance"
	"smart-attendance-go/internal/core/gallery"
	"smart-attendance-go/internal/core/session"
	"smart-attendance-go/internal/integrations/opencv"
	"smart-attendance-go/internal/server/sse"
	"smart-attendance-go/internal/util/timezone"
	"smart-attendance-go/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// WebHandler serves the HTML dashboard, the live camera preview and the
// real-time event stream.
type WebHandler struct {
	cfg        *config.Config
	gallery    *gallery.Store
	ledger     *attendance.Ledger
	manager    *session.Manager
	sseHub     *sse.Hub
	streamer   *opencv.Streamer
	translator *middleware.Translator
	templates  *template.Template
}

// NewWebHandler loads the HTML templates and locale files. The streamer may
// be nil when the camera integration is disabled.
func NewWebHandler(
	cfg *config.Config,
	galleryStore *gallery.Store,
	ledger *attendance.Ledger,
	manager *session.Manager,
	sseHub *sse.Hub,
	streamer *opencv.Streamer,
) (*WebHandler, error) {
	translator, err := middleware.NewTranslator(cfg.I18n)
	if err != nil {
		return nil, fmt.Errorf("failed to load translations: %w", err)
	}

	h := &WebHandler{
		cfg:        cfg,
		gallery:    galleryStore,
		ledger:     ledger,
		manager:    manager,
		sseHub:     sseHub,
		streamer:   streamer,
		translator: translator,
	}

	if err := h.loadTemplates(); err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	return h, nil
}

// loadTemplates parses every HTML template with the shared function map.
// Translation happens per request, so "t" here only resolves the default
// language; renderTemplate overrides it with the request language.
func (h *WebHandler) loadTemplates() error {
	log.Infof("Loading templates from %s", h.cfg.Server.TemplateDir)

	funcMap := template.FuncMap{
		"t": func(key string) string {
			return h.translator.Translate(h.cfg.I18n.DefaultLanguage, key)
		},
		"formatTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		"formatScore": func(s float64) string {
			return fmt.Sprintf("%.1f", s)
		},
		"formatBytes": utils.FormatBytes,
	}

	pattern := filepath.Join(h.cfg.Server.TemplateDir, "*.html")
	templates, err := template.New("").Funcs(funcMap).ParseGlob(pattern)
	if err != nil {
		return err
	}

	h.templates = templates
	log.Infof("Loaded %d templates", len(templates.Templates()))
	return nil
}

// renderTemplate renders a template with base data and the request language.
func (h *WebHandler) renderTemplate(c *gin.Context, name string, data gin.H) {
	tmpl := h.templates.Lookup(name)
	if tmpl == nil {
		log.Errorf("Template %s not found", name)
		c.String(http.StatusInternalServerError, "Template not found")
		return
	}

	lang := h.cfg.I18n.DefaultLanguage
	if v, ok := c.Get("language"); ok {
		if l, ok := v.(string); ok {
			lang = l
		}
	}

	if _, exists := data["Title"]; !exists {
		data["Title"] = "Smart Attendance"
	}
	data["CurrentPage"] = name
	data["Language"] = lang

	// Rebind "t" to the request language for this render.
	render, err := tmpl.Clone()
	if err != nil {
		log.WithError(err).Errorf("Failed to clone template %s", name)
		c.String(http.StatusInternalServerError, "Template error")
		return
	}
	render = render.Funcs(template.FuncMap{
		"t": func(key string) string {
			return h.translator.Translate(lang, key)
		},
	})

	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := render.Execute(c.Writer, data); err != nil {
		log.Errorf("Template execution error: %v", err)
	}
}

// RegisterRoutes registers all web routes.
func (h *WebHandler) RegisterRoutes(router *gin.Engine) {
	router.Static("/static", "./web/static")
	router.Static("/snapshots", h.cfg.Server.SnapshotDir)

	router.GET("/", h.handleDashboard)
	router.GET("/enroll", h.handleEnroll)
	router.GET("/video_feed", h.handleVideoFeed)
	router.GET("/events", h.handleSSE)
	router.GET("/system/stats", h.handleSystemStats)
}

// handleDashboard shows today's attendance, the enrolled identities and the
// session state.
func (h *WebHandler) handleDashboard(c *gin.Context) {
	today := attendance.DateOf(timezone.Now())
	records := h.ledger.Day(today)

	h.renderTemplate(c, "index.html", gin.H{
		"Date":           today,
		"Records":        records,
		"Identities":     h.gallery.List(),
		"SessionRunning": h.manager.Running(),
	})
}

// handleEnroll shows the enrollment page.
func (h *WebHandler) handleEnroll(c *gin.Context) {
	h.renderTemplate(c, "enroll.html", gin.H{
		"Identities": h.gallery.List(),
	})
}

// handleVideoFeed streams the annotated camera preview as MJPEG.
func (h *WebHandler) handleVideoFeed(c *gin.Context) {
	if h.streamer == nil {
		c.String(http.StatusServiceUnavailable, "Camera not available")
		return
	}

	const boundary = "frame"
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "close")

	var seq uint64
	done := c.Request.Context().Done()
	for {
		frame, nextSeq, ok := h.streamer.Next(seq, done)
		if !ok {
			return
		}
		seq = nextSeq

		if _, err := fmt.Fprintf(c.Writer,
			"--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
			boundary, len(frame)); err != nil {
			return
		}
		if _, err := c.Writer.Write(frame); err != nil {
			return
		}
		if _, err := io.WriteString(c.Writer, "\r\n"); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

// handleSSE streams recognition and session events to the browser.
func (h *WebHandler) handleSSE(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(sse.Client, 10)
	h.sseHub.Register(client)
	defer h.sseHub.Unregister(client)

	c.Stream(func(w io.Writer) bool {
		msg, ok := <-client
		if !ok {
			return false
		}
		c.SSEvent("message", string(msg))
		return true
	})
}

// handleSystemStats returns current host metrics as JSON.
func (h *WebHandler) handleSystemStats(c *gin.Context) {
	c.JSON(http.StatusOK, utils.GetSystemStats())
}
