package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/maheshchichkoti/email-archiver/internal/services"
)

// SyncHandler exposes the manual sync trigger and status endpoints
type SyncHandler struct {
	syncService       *services.SyncService
	credentialService *services.CredentialService
	messageService    *services.MessageService
	logService        *services.LogService
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(syncService *services.SyncService, credentialService *services.CredentialService, messageService *services.MessageService, logService *services.LogService) *SyncHandler {
	return &SyncHandler{
		syncService:       syncService,
		credentialService: credentialService,
		messageService:    messageService,
		logService:        logService,
	}
}

// TriggerSync starts a sync cycle in the background and reports initiation
// immediately; the outcome surfaces through logs and the status endpoint.
// POST /api/sync/run
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	if h.syncService.Running() {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SYNC_IN_PROGRESS",
				"message": "A sync cycle is already running",
			},
		})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), services.CycleTimeout)
		defer cancel()

		if _, err := h.syncService.RunCycle(ctx); err != nil &&
			!errors.Is(err, services.ErrCycleInProgress) {
			log.Printf("[API] Manual sync cycle failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data":    gin.H{"message": "Sync cycle started"},
	})
}

// GetStatus reports authorization state, the stored cursor and archive counts
// GET /api/sync/status
func (h *SyncHandler) GetStatus(c *gin.Context) {
	authorized := true
	var cursor *string

	cred, err := h.credentialService.Get()
	if err != nil {
		if !errors.Is(err, services.ErrNotAuthorized) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   gin.H{"code": "STATUS_FAILED", "message": err.Error()},
			})
			return
		}
		authorized = false
	} else {
		cursor = cred.LastCursor
	}

	messages, err := h.messageService.CountMessages()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   gin.H{"code": "STATUS_FAILED", "message": err.Error()},
		})
		return
	}
	attachments, _ := h.messageService.CountAttachments()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"authorized":  authorized,
			"cursor":      cursor,
			"messages":    messages,
			"attachments": attachments,
			"running":     h.syncService.Running(),
		},
	})
}

// ListLogs returns recent activity log entries
// GET /api/logs
func (h *SyncHandler) ListLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		limit = 100
	}

	logs, err := h.logService.ListLogs(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   gin.H{"code": "LOGS_FAILED", "message": err.Error()},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"logs": logs},
	})
}
