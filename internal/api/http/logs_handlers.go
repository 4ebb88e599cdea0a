package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxLogEntries bounds one log batch.
const MaxLogEntries = 500

// ClientLogEntry is a log line forwarded by a client of this node.
type ClientLogEntry struct {
	ID        string         `json:"id"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	Timestamp string         `json:"timestamp"`
}

// LogBatchRequest is a batch of client log entries.
type LogBatchRequest struct {
	Source    string           `json:"source"`
	Entries   []ClientLogEntry `json:"entries"`
	Timestamp int64            `json:"timestamp"`
}

// StreamLogs writes client log entries into this node's log, tagged with
// the request scope so they join the caller's trace.
func (h *Handlers) StreamLogs(c *gin.Context) {
	var req LogBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log request format"})
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Log source is required"})
		return
	}
	if len(req.Entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No log entries provided"})
		return
	}
	if len(req.Entries) > MaxLogEntries {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Too many log entries", "max": MaxLogEntries})
		return
	}

	logger := h.logger.For(c.Request.Context()).With(zap.String("source", req.Source))
	processed := 0
	for _, entry := range req.Entries {
		if strings.TrimSpace(entry.Message) == "" {
			continue
		}
		writeClientEntry(logger, entry)
		processed++
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"entries_received":  len(req.Entries),
		"entries_processed": processed,
		"timestamp":         time.Now().Unix(),
	})
}

func writeClientEntry(logger *zap.Logger, entry ClientLogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+2)
	fields = append(fields,
		zap.String("client_log_id", entry.ID),
		zap.String("client_timestamp", entry.Timestamp),
	)
	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch strings.ToLower(entry.Level) {
	case "error":
		logger.Error(entry.Message, fields...)
	case "warn", "warning":
		logger.Warn(entry.Message, fields...)
	case "debug", "verbose":
		logger.Debug(entry.Message, fields...)
	default:
		logger.Info(entry.Message, fields...)
	}
}
