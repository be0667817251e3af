package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Crispemo/simulia-session/internal/middleware"
	"github.com/Crispemo/simulia-session/internal/model"
	"github.com/Crispemo/simulia-session/internal/response"
	"github.com/Crispemo/simulia-session/internal/service"
	"github.com/Crispemo/simulia-session/internal/validator"
)

// SessionHandler handles exam session persistence endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// SaveProgress godoc
// POST /api/v1/sessions/progress
// Persists one progress snapshot and returns the session id.
func (h *SessionHandler) SaveProgress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SaveProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sessionID, err := h.sessionService.SaveProgress(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		if errors.Is(err, service.ErrBadEnvelope) {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessionId": sessionID})
}

// Resume godoc
// GET /api/v1/sessions/resume
// Returns the user's latest unfinished session in its stored shape.
func (h *SessionHandler) Resume(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	rec, found, err := h.sessionService.Resume(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if !found {
		response.Success(c, http.StatusOK, gin.H{"found": false})
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"found":   true,
		"session": buildSessionPayload(rec, claims.UserID),
	})
}

// Finalize godoc
// POST /api/v1/sessions/finalize
// Closes a session exactly once and returns the server-computed score.
func (h *SessionHandler) Finalize(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.FinalizeSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.Finalize(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBadEnvelope):
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		case errors.Is(err, service.ErrSessionNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrSessionUnknown)
		case errors.Is(err, service.ErrSessionNotOwned):
			response.Fail(c, http.StatusForbidden, response.ErrSessionNotOwned)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// History godoc
// GET /api/v1/sessions
// Lists all of the user's sessions, newest first.
func (h *SessionHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessions, err := h.sessionService.ListByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// buildSessionPayload renders a stored row in the resume wire shape.
// Answers and doubt flags pass through verbatim so historical rows keep
// whatever shape they were written in.
func buildSessionPayload(rec *model.SessionRecord, userID int) gin.H {
	return gin.H{
		"sessionId":            rec.ID.String(),
		"userId":               strconv.Itoa(userID),
		"examKind":             rec.ExamKind,
		"questions":            rec.Questions,
		"answers":              rec.Answers,
		"doubtFlags":           rec.DoubtFlags,
		"timeLeftSeconds":      rec.TimeLeft,
		"totalTimeSeconds":     rec.TotalTime,
		"currentQuestionIndex": rec.CurrentIndex,
		"status":               rec.Status,
	}
}
