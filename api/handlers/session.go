// Package handlers provides HTTP API request handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opencontroller/backend/internal/model"
)

// maxListLimit caps the number of rows a single history request returns.
const maxListLimit = 500

// SessionLister reads persisted controller session history.
type SessionLister interface {
	List(ctx context.Context, limit int) ([]*model.SessionRecord, error)
	GetByID(ctx context.Context, id string) (*model.SessionRecord, error)
}

// SessionHandler serves controller session history.
type SessionHandler struct {
	repo SessionLister
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(repo SessionLister) *SessionHandler {
	return &SessionHandler{
		repo: repo,
	}
}

// SessionResponse represents a session record in API responses.
type SessionResponse struct {
	ID             string `json:"id"`
	ClientID       string `json:"clientId"`
	Controller     int    `json:"controller"`
	RemoteAddr     string `json:"remoteAddr,omitempty"`
	Status         string `json:"status"`
	DriverOK       bool   `json:"driverOk"`
	Inputs         int64  `json:"inputs"`
	Duration       string `json:"duration"`
	ConnectedAt    string `json:"connectedAt"`
	UpdatedAt      string `json:"updatedAt"`
	DisconnectedAt string `json:"disconnectedAt,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// toSessionResponse converts a model.SessionRecord to SessionResponse.
func toSessionResponse(r *model.SessionRecord) *SessionResponse {
	resp := &SessionResponse{
		ID:          r.ID,
		ClientID:    r.ClientID,
		Controller:  int(r.Slot),
		RemoteAddr:  r.RemoteAddr,
		Status:      string(r.Status),
		DriverOK:    r.DriverOK,
		Inputs:      r.Inputs,
		Duration:    formatDuration(r.Duration()),
		ConnectedAt: r.ConnectedAt.Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339),
	}
	if r.DisconnectedAt != nil {
		resp.DisconnectedAt = r.DisconnectedAt.Format(time.RFC3339)
	}
	return resp
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return time.Duration(h*time.Hour + m*time.Minute + s*time.Second).String()
	}
	if m > 0 {
		return time.Duration(m*time.Minute + s*time.Second).String()
	}
	return time.Duration(s * time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// List handles GET /api/sessions - lists the most recent sessions.
func (h *SessionHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := h.repo.List(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list sessions: "+err.Error())
		return
	}

	sessions := make([]*SessionResponse, 0, len(records))
	for _, r := range records {
		sessions = append(sessions, toSessionResponse(r))
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// Get handles GET /api/sessions/:id - gets one session record.
func (h *SessionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return
	}

	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+id+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(rec))
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions", h.List)
	rg.GET("/sessions/:id", h.Get)
}
