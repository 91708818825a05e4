package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jo-hoe/snapframe/internal/backend/database"
	"github.com/jo-hoe/snapframe/internal/camera"
	"github.com/jo-hoe/snapframe/internal/common"
	"github.com/jo-hoe/snapframe/internal/core"
	"github.com/jo-hoe/snapframe/internal/session"
	"github.com/labstack/echo/v4"
)

const sessionRoute = "/api/sessions/:id"

type APIService struct {
	coreService *core.CoreService
}

// SessionResponse is the kiosk-facing view of a session.
type SessionResponse struct {
	ID           string                    `json:"id"`
	Phase        string                    `json:"phase"`
	Version      uint64                    `json:"version"`
	UpdatedAt    time.Time                 `json:"updatedAt"`
	Countdown    int                       `json:"countdown,omitempty"`
	Affordance   string                    `json:"affordance,omitempty"`
	Error        string                    `json:"error,omitempty"`
	HasPreview   bool                      `json:"hasPreview"`
	HasCode      bool                      `json:"hasCode"`
	RetrievalURL string                    `json:"retrievalUrl,omitempty"`
	Record       *database.PublishedRecord `json:"record,omitempty"`
}

type PermissionRequest struct {
	Granted *bool `json:"granted" validate:"required"`
}

func NewAPIService(coreService *core.CoreService) *APIService {
	return &APIService{coreService: coreService}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.POST("/api/sessions", s.createSessionHandler)
	e.GET(sessionRoute, s.stateHandler)
	e.DELETE(sessionRoute, s.deleteSessionHandler)
	e.GET(sessionRoute+"/events", s.waitHandler)
	e.POST(sessionRoute+"/permission", s.permissionHandler)
	e.PUT(sessionRoute+"/frame", s.frameHandler)
	e.GET(sessionRoute+"/preview.png", s.previewHandler)
	e.GET(sessionRoute+"/code.png", s.codeHandler)

	commands := map[string]func(*session.Machine) func(context.Context) error{
		"start":            func(m *session.Machine) func(context.Context) error { return m.Start },
		"retry-permission": func(m *session.Machine) func(context.Context) error { return m.RetryPermission },
		"capture":          func(m *session.Machine) func(context.Context) error { return m.Capture },
		"retake":           func(m *session.Machine) func(context.Context) error { return m.Retake },
		"continue":         func(m *session.Machine) func(context.Context) error { return m.Continue },
		"retry":            func(m *session.Machine) func(context.Context) error { return m.Retry },
		"retry-code":       func(m *session.Machine) func(context.Context) error { return m.RetryCode },
		"finish":           func(m *session.Machine) func(context.Context) error { return m.Finish },
		"reset":            func(m *session.Machine) func(context.Context) error { return m.Reset },
	}
	for name, pick := range commands {
		e.POST(sessionRoute+"/"+name, s.commandHandler(name, pick))
	}
}

func toResponse(snap session.Snapshot) SessionResponse {
	resp := SessionResponse{
		ID:         snap.ID,
		Phase:      snap.Phase.String(),
		Version:    snap.Version,
		UpdatedAt:  snap.UpdatedAt,
		Countdown:  snap.Countdown,
		Affordance: string(snap.Affordance),
		Error:      snap.Error,
		HasPreview: snap.Composite != nil || snap.Frame != nil,
		HasCode:    snap.Code != nil,
		Record:     snap.Record,
	}
	if snap.Code != nil {
		resp.RetrievalURL = snap.Code.URL
	}
	return resp
}

func (s *APIService) lookup(ctx echo.Context) (*core.KioskSession, error) {
	ks, err := s.coreService.Sessions().Get(ctx.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return ks, nil
}

func (s *APIService) createSessionHandler(ctx echo.Context) error {
	ks, err := s.coreService.Sessions().Create()
	if err != nil {
		slog.Error("createSessionHandler: failed to create session", "status", http.StatusInternalServerError, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create session")
	}
	return ctx.JSON(http.StatusCreated, toResponse(ks.Machine.Snapshot()))
}

func (s *APIService) stateHandler(ctx echo.Context) error {
	ks, err := s.lookup(ctx)
	if err != nil {
		return err
	}
	setNoCache(ctx)
	return ctx.JSON(http.StatusOK, toResponse(ks.Machine.Snapshot()))
}

// waitHandler long-polls until the session moves past the version the client has seen.
func (s *APIService) waitHandler(ctx echo.Context) error {
	ks, err := s.lookup(ctx)
	if err != nil {
		return err
	}
	var query struct {
		After   uint64 `query:"after"`
		Timeout int    `query:"timeoutMs"`
	}
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &query); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	timeout := 25 * time.Second
	if query.Timeout > 0 && time.Duration(query.Timeout)*time.Millisecond < timeout {
		timeout = time.Duration(query.Timeout) * time.Millisecond
	}

	waitCtx, cancel := context.WithTimeout(ctx.Request().Context(), timeout)
	defer cancel()
	snap, err := ks.Machine.WaitFor(waitCtx, func(current session.Snapshot) bool { return current.Version > query.After })
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, session.ErrStopped) {
		return err
	}
	setNoCache(ctx)
	return ctx.JSON(http.StatusOK, toResponse(snap))
}

func (s *APIService) deleteSessionHandler(ctx echo.Context) error {
	if err := s.coreService.Sessions().Remove(ctx.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *APIService) permissionHandler(ctx echo.Context) error {
	ks, err := s.lookup(ctx)
	if err != nil {
		return err
	}
	var req PermissionRequest
	if err := common.BindAndValidate(ctx, &req); err != nil {
		return err
	}
	ks.Camera.SetPermission(*req.Granted)
	return ctx.NoContent(http.StatusAccepted)
}

func (s *APIService) frameHandler(ctx echo.Context) error {
	ks, err := s.lookup(ctx)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(ctx.Request().Body, camera.MaxFrameBytes+1))
	if err != nil {
		slog.Error("frameHandler: failed to read frame", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read frame")
	}
	if err := ks.Camera.PushFrame(data); err != nil {
		if errors.Is(err, camera.ErrReleased) {
			return echo.NewHTTPError(http.StatusConflict, "camera released")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *APIService) commandHandler(name string, pick func(*session.Machine) func(context.Context) error) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ks, err := s.lookup(ctx)
		if err != nil {
			return err
		}
		if err := pick(ks.Machine)(ctx.Request().Context()); err != nil {
			switch {
			case errors.Is(err, session.ErrInvalidTransition):
				return echo.NewHTTPError(http.StatusConflict, err.Error())
			case errors.Is(err, session.ErrStopped):
				return echo.NewHTTPError(http.StatusGone, "session stopped")
			default:
				slog.Error("commandHandler: command failed", "command", name, "session_id", ks.Machine.ID(), "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "command failed")
			}
		}
		return ctx.JSON(http.StatusAccepted, toResponse(ks.Machine.Snapshot()))
	}
}

// previewHandler serves the composite once it exists, otherwise the captured frame.
// Both are gone once the session is finished.
func (s *APIService) previewHandler(ctx echo.Context) error {
	ks, err := s.lookup(ctx)
	if err != nil {
		return err
	}
	snap := ks.Machine.Snapshot()
	setNoCache(ctx)
	switch {
	case snap.Composite != nil:
		return ctx.Blob(http.StatusOK, snap.Composite.MimeType, snap.Composite.Data)
	case snap.Frame != nil:
		return ctx.Blob(http.StatusOK, snap.Frame.MimeType, snap.Frame.Data)
	default:
		return echo.NewHTTPError(http.StatusNotFound, "no preview available")
	}
}

func (s *APIService) codeHandler(ctx echo.Context) error {
	ks, err := s.lookup(ctx)
	if err != nil {
		return err
	}
	snap := ks.Machine.Snapshot()
	if snap.Code == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no retrieval code available")
	}
	return ctx.Blob(http.StatusOK, "image/png", snap.Code.PNG)
}

func setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
