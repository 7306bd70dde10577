package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tessera/internal/checksum"
	"github.com/starford/tessera/internal/tile"
	"github.com/starford/tessera/internal/tileservice"
	"github.com/starford/tessera/internal/workspace"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *tileservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *tileservice.Service) *Handler {
	return &Handler{svc: svc}
}

// urlParam returns a decoded path parameter. Ids may arrive with encoded
// slashes (e.g. daily%2F2024-05-01).
func urlParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func tileID(r *http.Request) (tile.ID, error) {
	return tileservice.ParseID(urlParam(r, "kind"), urlParam(r, "id"))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// GetConfig handles GET /api/config.
//
//	@Summary	Effective layout settings
//	@Tags		config
//	@Produce	json
//	@Success	200	{object}	Settings
//	@Router		/config [get]
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Settings())
}

// ListWorkspaces handles GET /api/workspaces.
func (h *Handler) ListWorkspaces(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, WorkspaceListResponse{Workspaces: h.svc.Workspaces()})
}

// ListTiles handles GET /api/workspaces/{ws}/tiles.
//
//	@Summary	Tiles of a workspace in insertion order
//	@Tags		workspaces
//	@Produce	json
//	@Param		ws				path		string	true	"Workspace id"
//	@Param		If-None-Match	header		string	false	"ETag of a previous response"
//	@Success	200				{object}	Snapshot
//	@Success	304
//	@Router		/workspaces/{ws}/tiles [get]
func (h *Handler) ListTiles(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(urlParam(r, "ws"))
	if err != nil {
		writeError(w, "snapshot", err)
		return
	}
	tag, err := checksum.ETag(snap)
	if err != nil {
		writeError(w, "etag", err)
		return
	}
	w.Header().Set("ETag", tag)
	if checksum.Matches(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// OpenTile handles POST /api/workspaces/{ws}/tiles.
//
//	@Summary	Open a tile, placing it at remembered geometry or auto-tiling
//	@Tags		workspaces
//	@Accept		json
//	@Produce	json
//	@Param		ws		path		string			true	"Workspace id"
//	@Param		body	body		OpenTileRequest	true	"Tile to open"
//	@Success	200		{object}	tile.Tile
//	@Failure	400		{object}	errResponse
//	@Router		/workspaces/{ws}/tiles [post]
func (h *Handler) OpenTile(w http.ResponseWriter, r *http.Request) {
	var req OpenTileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	d, err := req.Descriptor()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	t, err := h.svc.OpenTile(r.Context(), urlParam(r, "ws"), d)
	if err != nil {
		writeError(w, "open tile", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CloseTile handles DELETE /api/workspaces/{ws}/tiles/{kind}/{id}.
func (h *Handler) CloseTile(w http.ResponseWriter, r *http.Request) {
	id, err := tileID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.CloseTile(urlParam(r, "ws"), id); err != nil {
		writeError(w, "close tile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateGeometry handles PATCH /api/workspaces/{ws}/tiles/{kind}/{id}.
// Only the supplied fields change.
func (h *Handler) UpdateGeometry(w http.ResponseWriter, r *http.Request) {
	id, err := tileID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	var p tile.Partial
	if !decodeBody(w, r, &p) {
		return
	}
	t, err := h.svc.UpdateGeometry(urlParam(r, "ws"), id, p)
	if err != nil {
		writeError(w, "update geometry", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// BringToFront handles POST /api/workspaces/{ws}/tiles/{kind}/{id}/front.
func (h *Handler) BringToFront(w http.ResponseWriter, r *http.Request) {
	id, err := tileID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	t, err := h.svc.BringToFront(urlParam(r, "ws"), id)
	if err != nil {
		writeError(w, "bring to front", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ToggleFullscreen handles POST /api/workspaces/{ws}/tiles/{kind}/{id}/fullscreen.
func (h *Handler) ToggleFullscreen(w http.ResponseWriter, r *http.Request) {
	id, err := tileID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	on, err := h.svc.ToggleFullscreen(urlParam(r, "ws"), id)
	if err != nil {
		writeError(w, "toggle fullscreen", err)
		return
	}
	writeJSON(w, http.StatusOK, FullscreenResponse{Fullscreen: on})
}

// SetCanvas handles PUT /api/workspaces/{ws}/canvas.
func (h *Handler) SetCanvas(w http.ResponseWriter, r *http.Request) {
	var req CanvasRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ws := urlParam(r, "ws")
	if err := h.svc.SetCanvas(ws, workspace.Canvas{Width: req.Width, Height: req.Height}); err != nil {
		writeError(w, "set canvas", err)
		return
	}
	snap, err := h.svc.Snapshot(ws)
	if err != nil {
		writeError(w, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListRemembered handles GET /api/tiles.
func (h *Handler) ListRemembered(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.ListRemembered(r.Context())
	if err != nil {
		writeError(w, "list remembered", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Tiles: recs})
}

// GetRemembered handles GET /api/tiles/{kind}/{id}.
func (h *Handler) GetRemembered(w http.ResponseWriter, r *http.Request) {
	id, err := tileID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	rec, err := h.svc.GetRemembered(r.Context(), id)
	if err != nil {
		writeError(w, "get remembered", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// PutRemembered handles PUT /api/tiles/{kind}/{id}.
func (h *Handler) PutRemembered(w http.ResponseWriter, r *http.Request) {
	id, err := tileID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	var req PlacementRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	rec, err := h.svc.PutRemembered(r.Context(), id, req.Placement())
	if err != nil {
		writeError(w, "put remembered", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteRemembered handles DELETE /api/tiles/{kind}/{id}.
func (h *Handler) DeleteRemembered(w http.ResponseWriter, r *http.Request) {
	id, err := tileID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.DeleteRemembered(r.Context(), id); err != nil {
		writeError(w, "delete remembered", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewLayout handles GET /api/layout?n=&width=&height=&gap=.
// Missing dimensions default to the configured canvas and gap.
func (h *Handler) PreviewLayout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := strconv.Atoi(q.Get("n"))
	if err != nil || n < 0 || n > 64 {
		writeJSON(w, http.StatusBadRequest, errorBody("n must be an integer between 0 and 64"))
		return
	}
	s := h.svc.Settings()
	width, errW := floatParam(q.Get("width"), s.CanvasWidth)
	height, errH := floatParam(q.Get("height"), s.CanvasHeight)
	gap, errG := floatParam(q.Get("gap"), s.Gap)
	if err := errors.Join(errW, errH, errG); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	scheme, rects, err := h.svc.PreviewLayout(n, width, height, gap)
	if err != nil {
		writeError(w, "preview layout", err)
		return
	}
	writeJSON(w, http.StatusOK, LayoutPreviewResponse{
		Scheme: string(scheme),
		Rects:  rects,
	})
}

func floatParam(raw string, fallback float64) (float64, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	return v, nil
}
