package dispatch

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/pkg/logger"
)

// StartCallRequest is the /start_call body.
type StartCallRequest struct {
	Room        string `json:"room" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
}

// Handler wires the dispatch gateway to HTTP.
type Handler struct {
	Gateway *Gateway
	Guard   Guard
	Calls   *calls.Service
}

// HandleStartCall dispatches one outbound call.
// 200 {message, output} on success, 409 on duplicate (guard enabled),
// 500 {detail} on dispatch failure.
func (h Handler) HandleStartCall(c *gin.Context) {
	log := logger.FromGin(c)

	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "room and phone_number are required"})
		return
	}

	ctx := c.Request.Context()

	guard := h.Guard
	if guard == nil {
		guard = NoGuard{}
	}
	ok, err := guard.Acquire(ctx, req.Room, req.PhoneNumber)
	if err != nil {
		// A broken guard should not block dialing; log and continue.
		log.Warn("dispatch guard unavailable", "err", err)
		ok = true
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"detail": "a dispatch for this room and number is already in flight"})
		return
	}

	output, err := h.Gateway.StartCall(ctx, req.Room, req.PhoneNumber)
	if err != nil {
		_ = guard.Release(ctx, req.Room, req.PhoneNumber)

		if errors.Is(err, ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		log.Error("dispatch failed", "room", req.Room, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Dispatch failed: " + err.Error()})
		return
	}

	if h.Calls != nil {
		h.Calls.RecordDispatched(ctx, req.Room, req.PhoneNumber)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Call dispatched successfully",
		"output":  output,
	})
}

// CORS opens the API to browser callers, matching the deployed variant.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
