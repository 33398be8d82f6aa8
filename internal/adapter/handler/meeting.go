package handler

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "github.com/hoangnm-dev/meeting-scribe/errors"
	meetingdto "github.com/hoangnm-dev/meeting-scribe/internal/adapter/dto/meeting"
	"github.com/hoangnm-dev/meeting-scribe/internal/infrastructure/http/middleware"
	meetingusecase "github.com/hoangnm-dev/meeting-scribe/internal/usecase/meeting"
	"github.com/hoangnm-dev/meeting-scribe/internal/usecase/pipeline"
	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
)

// Meeting handles meeting upload and lifecycle endpoints
type Meeting struct {
	service      *meetingusecase.Service
	orchestrator *pipeline.Orchestrator
	cfg          *config.Config
	logger       *zap.Logger
}

// NewMeetingHandler creates a meeting handler
func NewMeetingHandler(service *meetingusecase.Service, orchestrator *pipeline.Orchestrator, cfg *config.Config, logger *zap.Logger) *Meeting {
	return &Meeting{
		service:      service,
		orchestrator: orchestrator,
		cfg:          cfg,
		logger:       logger,
	}
}

func (h *Meeting) userID(c echo.Context) (uuid.UUID, error) {
	id, ok := middleware.UserIDFromContext(c)
	if !ok {
		return uuid.Nil, apperrors.ErrUnauthenticated()
	}
	return id, nil
}

// InitUpload opens a resumable upload session
// POST /v1/meetings/uploads
func (h *Meeting) InitUpload(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	var req meetingdto.InitUploadRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, h.logger, apperrors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return handleError(c, h.logger, apperrors.ErrInvalidArgument(err.Error()))
	}

	session, err := h.service.InitUpload(c.Request().Context(), userID, req.FileName, req.MimeType, req.TotalSize)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return handleSuccess(c, h.logger, meetingdto.UploadSessionResponse{
		SessionID:     session.ID,
		ObjectName:    session.ObjectName,
		ReceivedBytes: session.ReceivedBytes,
		TotalSize:     session.TotalSize,
		ExpiresInSec:  3600,
	})
}

// UploadChunk appends one part to an upload session
// PUT /v1/meetings/uploads/:sessionId
func (h *Meeting) UploadChunk(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		return handleError(c, h.logger, apperrors.ErrInvalidArgument("invalid session id"))
	}

	session, err := h.service.AppendChunk(c.Request().Context(), userID, sessionID, c.Request().Body)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return handleSuccess(c, h.logger, meetingdto.UploadSessionResponse{
		SessionID:     session.ID,
		ObjectName:    session.ObjectName,
		ReceivedBytes: session.ReceivedBytes,
		TotalSize:     session.TotalSize,
		ExpiresInSec:  3600,
	})
}

// CompleteUpload finalizes a session and starts the pipeline
// POST /v1/meetings/uploads/:sessionId/complete
func (h *Meeting) CompleteUpload(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		return handleError(c, h.logger, apperrors.ErrInvalidArgument("invalid session id"))
	}

	var req meetingdto.CompleteUploadRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, h.logger, apperrors.ErrInvalidPayload())
	}

	m, err := h.service.CompleteUpload(c.Request().Context(), userID, sessionID, req.Title)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, meetingdto.ToMeetingResponse(m))
}

// DirectUpload accepts a whole recording as one multipart request
// POST /v1/meetings
func (h *Meeting) DirectUpload(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return handleError(c, h.logger, apperrors.ErrInvalidArgument("multipart field 'file' is required"))
	}
	src, err := fileHeader.Open()
	if err != nil {
		return handleError(c, h.logger, apperrors.ErrUploadFailed(err))
	}
	defer src.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	title := c.FormValue("title")

	m, err := h.service.DirectUpload(c.Request().Context(), userID, title, fileHeader.Filename, mimeType, src)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, meetingdto.ToMeetingResponse(m))
}

// Get returns a meeting with transcript and minutes
// GET /v1/meetings/:id
func (h *Meeting) Get(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, apperrors.ErrInvalidArgument("invalid meeting id"))
	}

	detail, err := h.service.Get(c.Request().Context(), userID, meetingID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, meetingdto.ToDetailResponse(detail))
}

// List returns the caller's meetings
// GET /v1/meetings
func (h *Meeting) List(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	var req meetingdto.ListMeetingsRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, h.logger, apperrors.ErrInvalidPayload())
	}
	if err := c.Validate(&req); err != nil {
		return handleError(c, h.logger, apperrors.ErrInvalidArgument(err.Error()))
	}

	meetings, err := h.service.List(c.Request().Context(), userID, req.Limit, req.Offset)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	out := make([]meetingdto.MeetingResponse, 0, len(meetings))
	for i := range meetings {
		out = append(out, meetingdto.ToMeetingResponse(&meetings[i]))
	}
	return handleSuccess(c, h.logger, out)
}

// Retry resumes a failed meeting from its last good state
// POST /v1/meetings/:id/retry
func (h *Meeting) Retry(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, apperrors.ErrInvalidArgument("invalid meeting id"))
	}

	if err := h.orchestrator.Retry(c.Request().Context(), meetingID, userID); err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, map[string]string{"meeting_id": meetingID.String()})
}

// Cancel stops a queued or running pipeline
// POST /v1/meetings/:id/cancel
func (h *Meeting) Cancel(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, apperrors.ErrInvalidArgument("invalid meeting id"))
	}

	if err := h.orchestrator.Cancel(c.Request().Context(), meetingID, userID); err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, map[string]string{"meeting_id": meetingID.String()})
}

// Quota reports remaining weekly uploads
// GET /v1/meetings/quota
func (h *Meeting) Quota(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	remaining, err := h.service.QuotaRemaining(c.Request().Context(), userID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return handleSuccess(c, h.logger, meetingdto.QuotaResponse{
		RemainingUploads: remaining,
		WeeklyLimit:      h.cfg.Quota.WeeklyUploadLimit,
	})
}
