package frontend

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/jo-hoe/snapframe/internal/backend/blobstore"
	"github.com/jo-hoe/snapframe/internal/backend/database"
	"github.com/jo-hoe/snapframe/internal/common"
	"github.com/jo-hoe/snapframe/internal/core"
	"github.com/labstack/echo/v4"
)

const mimeCSV = "text/csv; charset=utf-8"

type FrontendService struct {
	coreService *core.CoreService
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type photosResponse struct {
	Photos   []*database.PublishedRecord `json:"photos"`
	Returned int                         `json:"returned"`
}

func NewFrontendService(coreService *core.CoreService) *FrontendService {
	return &FrontendService{coreService: coreService}
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", service.livenessHandler)
	e.GET(common.RetrievalPath, service.retrieveHandler)
	e.GET("/media/*", service.mediaHandler)

	e.GET("/api/admin/photos", service.listPhotosHandler)
	e.GET("/api/admin/stats", service.statsHandler)
	e.GET("/api/admin/export", service.exportHandler)
	e.GET("/api/admin/health", service.healthHandler)
}

func (service *FrontendService) livenessHandler(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "snapframe is running")
}

// retrieveHandler resolves a scanned retrieval code to the published binary.
// A direct url parameter is redirected to as-is.
func (service *FrontendService) retrieveHandler(ctx echo.Context) error {
	if direct := ctx.QueryParam("url"); direct != "" {
		target, err := url.Parse(direct)
		if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
			slog.Warn("retrieveHandler: rejected redirect target", "status", http.StatusBadRequest, "url", direct)
			return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "url must be an absolute http(s) URL"})
		}
		return ctx.Redirect(http.StatusFound, target.String())
	}

	id := ctx.QueryParam("id")
	if id == "" {
		slog.Warn("retrieveHandler: missing photo id", "status", http.StatusBadRequest, "route", common.RetrievalPath)
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "photo id or url is required"})
	}

	record, err := service.coreService.PublishedPhoto(ctx.Request().Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		slog.Warn("retrieveHandler: photo not found", "status", http.StatusNotFound, "photo_id", id)
		return ctx.JSON(http.StatusNotFound, errorResponse{Error: "photo not found"})
	}
	if err != nil {
		slog.Error("retrieveHandler: failed to look up photo", "status", http.StatusInternalServerError, "photo_id", id, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
	return ctx.Redirect(http.StatusFound, record.DownloadLocation)
}

func (service *FrontendService) mediaHandler(ctx echo.Context) error {
	objectPath, err := url.PathUnescape(ctx.Param("*"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid media path"})
	}
	data, err := service.coreService.Media(ctx.Request().Context(), objectPath)
	if errors.Is(err, blobstore.ErrNotFound) {
		return ctx.JSON(http.StatusNotFound, errorResponse{Error: "media not found"})
	}
	if err != nil {
		slog.Error("mediaHandler: failed to load media", "status", http.StatusInternalServerError, "path", objectPath, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load media"})
	}

	contentType := mime.TypeByExtension(path.Ext(objectPath))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	// Published objects never change.
	ctx.Response().Header().Set("Cache-Control", "public, max-age=3600, immutable")
	return ctx.Blob(http.StatusOK, contentType, data)
}

func (service *FrontendService) listPhotosHandler(ctx echo.Context) error {
	var filter core.PhotoFilter
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &filter); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid query parameters"})
	}
	photos, err := service.coreService.ListPhotos(ctx.Request().Context(), filter)
	if errors.Is(err, core.ErrInvalidFilter) {
		slog.Warn("listPhotosHandler: rejected filter", "status", http.StatusBadRequest, "error", err)
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	if err != nil {
		slog.Error("listPhotosHandler: failed to list photos", "status", http.StatusInternalServerError, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
	setNoCache(ctx)
	return ctx.JSON(http.StatusOK, photosResponse{Photos: photos, Returned: len(photos)})
}

func (service *FrontendService) statsHandler(ctx echo.Context) error {
	stats, err := service.coreService.Stats(ctx.Request().Context())
	if err != nil {
		slog.Error("statsHandler: failed to compute stats", "status", http.StatusInternalServerError, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
	setNoCache(ctx)
	return ctx.JSON(http.StatusOK, stats)
}

func (service *FrontendService) exportHandler(ctx echo.Context) error {
	// Buffer so a store failure can still become a JSON error response.
	var buf bytes.Buffer
	if err := service.coreService.ExportCSV(ctx.Request().Context(), &buf); err != nil {
		slog.Error("exportHandler: failed to export photos", "status", http.StatusInternalServerError, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, service.coreService.ExportFileName()))
	return ctx.Blob(http.StatusOK, mimeCSV, buf.Bytes())
}

// healthHandler reports whether backend credentials are present and the stores reachable.
func (service *FrontendService) healthHandler(ctx echo.Context) error {
	setNoCache(ctx)
	if _, err := core.LoadCredentials(core.DefaultEnvFile); err != nil {
		code := core.CredentialErrorCode(err)
		// Local drivers run without hosted credentials.
		if code == core.CodeLoadError || service.coreService.UsesHostedBackend() {
			slog.Warn("healthHandler: backend credentials unavailable", "code", code, "error", err)
			return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Code: code})
		}
	}
	if err := service.coreService.Check(ctx.Request().Context()); err != nil {
		slog.Error("healthHandler: preflight check failed", "error", err)
		return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Code: core.CodeLoadError})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
