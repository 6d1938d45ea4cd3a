package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Veenoway/on-chain-chess-sub001/internal/models"
	"github.com/Veenoway/on-chain-chess-sub001/internal/repository"
	"github.com/Veenoway/on-chain-chess-sub001/internal/service"
	"github.com/Veenoway/on-chain-chess-sub001/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	errMissingFields = "MISSING_FIELDS"
	errInvalidFields = "INVALID_FIELDS"
	errQueueFull     = "QUEUE_FULL"
	errInternal      = "INTERNAL_ERROR"
)

// MatchHistory read side of the optional match history store
type MatchHistory interface {
	ListByAddress(ctx context.Context, address string, limit int) ([]repository.MatchHistoryRecord, error)
}

// QueueHandler HTTP surface of the matchmaking queue
type QueueHandler struct {
	service *service.MatchmakingService
	history MatchHistory
}

// NewQueueHandler history may be nil
func NewQueueHandler(svc *service.MatchmakingService, history MatchHistory) *QueueHandler {
	return &QueueHandler{service: svc, history: history}
}

// Join POST /api/matchmaking/join
func (h *QueueHandler) Join(c *gin.Context) {
	var req models.JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	outcome, err := h.service.Join(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	if outcome.Match != nil {
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"matchFound": true,
			"match":      outcome.Match,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"matchFound":        false,
		"queuePosition":     outcome.QueuePosition,
		"estimatedWaitTime": outcome.EstimatedWaitTime,
	})
}

// Leave POST /api/matchmaking/leave
func (h *QueueHandler) Leave(c *gin.Context) {
	var req models.AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	wasInQueue, remaining, err := h.service.Leave(c.Request.Context(), req.PlayerAddress)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"wasInQueue":       wasInQueue,
		"remainingInQueue": remaining,
	})
}

// Status POST /api/matchmaking/status
func (h *QueueHandler) Status(c *gin.Context) {
	var req models.AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	status, err := h.service.Status(c.Request.Context(), req.PlayerAddress)
	if err != nil {
		h.fail(c, err)
		return
	}

	switch {
	case status.Match != nil:
		c.JSON(http.StatusOK, gin.H{
			"inQueue":    false,
			"matchFound": true,
			"match":      status.Match,
		})
	case status.Entry != nil:
		c.JSON(http.StatusOK, gin.H{
			"inQueue":           true,
			"queuePosition":     status.QueuePosition,
			"totalInQueue":      status.TotalInQueue,
			"estimatedWaitTime": status.EstimatedWaitTime,
			"waitingTime":       status.WaitingTime,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"inQueue":    false,
			"matchFound": false,
		})
	}
}

// Stats GET /api/matchmaking/stats
func (h *QueueHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Stats(c.Request.Context()))
}

// Debug POST /api/matchmaking/debug
func (h *QueueHandler) Debug(c *gin.Context) {
	var req models.AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	dump, err := h.service.Debug(c.Request.Context(), req.PlayerAddress)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dump)
}

// History GET /api/matchmaking/history?address=...&limit=...
func (h *QueueHandler) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "HISTORY_DISABLED"})
		return
	}

	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errMissingFields})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errInvalidFields})
		return
	}

	records, err := h.history.ListByAddress(c.Request.Context(), address, limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	matches := make([]gin.H, 0, len(records))
	for _, r := range records {
		matches = append(matches, gin.H{
			"matchId":     r.MatchID,
			"roomName":    r.RoomName,
			"gameTime":    r.GameTime,
			"betAmount":   r.BetAmount,
			"whitePlayer": gin.H{"id": r.WhiteID, "address": r.WhiteAddress},
			"blackPlayer": gin.H{"id": r.BlackID, "address": r.BlackAddress},
			"createdAt":   r.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "matches": matches})
}

// badRequest an empty body counts as missing fields, anything else unparsable as invalid
func (h *QueueHandler) badRequest(c *gin.Context, err error) {
	code := errInvalidFields
	if errors.Is(err, io.EOF) {
		code = errMissingFields
	}
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": code})
}

func (h *QueueHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrMissingFields):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errMissingFields})
	case errors.Is(err, service.ErrInvalidCriteria):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   errInvalidFields,
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success":       false,
			"error":         errQueueFull,
			"queueCapacity": h.service.Capacity(),
		})
	default:
		logger.Error("Matchmaking request failed",
			"path", c.FullPath(),
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": errInternal})
	}
}
