package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "github.com/hoangnm-dev/meeting-scribe/errors"
	"github.com/hoangnm-dev/meeting-scribe/internal/infrastructure/http/middleware"
	"github.com/hoangnm-dev/meeting-scribe/internal/usecase/progress"
)

// Progress streams pipeline progress events to clients over SSE
type Progress struct {
	broadcaster *progress.Broadcaster
	logger      *zap.Logger
}

// NewProgressHandler creates a progress handler
func NewProgressHandler(broadcaster *progress.Broadcaster, logger *zap.Logger) *Progress {
	return &Progress{broadcaster: broadcaster, logger: logger}
}

// Stream subscribes the client to one meeting's progress events
// GET /v1/meetings/:id/progress
func (h *Progress) Stream(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return handleError(c, h.logger, apperrors.ErrUnauthenticated())
	}
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, apperrors.ErrInvalidArgument("invalid meeting id"))
	}

	ctx := c.Request().Context()
	events, err := h.broadcaster.Subscribe(ctx, userID, meetingID)
	if err != nil {
		return handleError(c, h.logger, apperrors.ErrCacheFailed("progress subscribe", err))
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return nil
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, open := <-events:
			if !open {
				return nil
			}
			payload, merr := json.Marshal(event)
			if merr != nil {
				continue
			}
			if _, werr := fmt.Fprintf(resp, "data: %s\n\n", payload); werr != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
