package handlers

import (
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/opencontroller/backend/internal/ws"
)

// Manifest is the web app manifest served to phones.
var Manifest = gin.H{
	"name":             "OpenController",
	"short_name":       "OController",
	"description":      "Virtual Xbox Controller for your PC",
	"start_url":        "/",
	"display":          "fullscreen",
	"orientation":      "landscape",
	"background_color": "#1a1a1a",
	"theme_color":      "#1a1a1a",
	"icons": []gin.H{
		{
			"src":     "/static/icons/icon.svg",
			"sizes":   "any",
			"type":    "image/svg+xml",
			"purpose": "any maskable",
		},
	},
}

// StatusHandler serves health, status, shutdown and manifest endpoints.
type StatusHandler struct {
	service  *ws.Service
	shutdown func()
	once     sync.Once
}

// NewStatusHandler creates a StatusHandler. shutdown runs at most once, on
// the first accepted POST /shutdown.
func NewStatusHandler(service *ws.Service, shutdown func()) *StatusHandler {
	return &StatusHandler{
		service:  service,
		shutdown: shutdown,
	}
}

// Health handles GET /health.
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status handles GET /status - current occupancy, devices and recent activity.
func (h *StatusHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status())
}

// Shutdown handles POST /shutdown. Only loopback callers may stop the host.
func (h *StatusHandler) Shutdown(c *gin.Context) {
	ip := net.ParseIP(c.ClientIP())
	if ip == nil || !ip.IsLoopback() {
		sendError(c, http.StatusForbidden, "FORBIDDEN", "Shutdown is only allowed from localhost")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "shutting down",
	})

	if h.shutdown != nil {
		h.once.Do(func() {
			go h.shutdown()
		})
	}
}

// Manifest handles GET /manifest.json.
func (h *StatusHandler) Manifest(c *gin.Context) {
	c.Header("Content-Type", "application/manifest+json")
	c.JSON(http.StatusOK, Manifest)
}

// RegisterRoutes registers the status routes at the router root.
func (h *StatusHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/status", h.Status)
	r.POST("/shutdown", h.Shutdown)
	r.GET("/manifest.json", h.Manifest)
}
