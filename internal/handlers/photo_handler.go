package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/catalog"
	"github.com/maukemana/catalog/internal/catalogerr"
	"github.com/maukemana/catalog/internal/models"
	"github.com/maukemana/catalog/internal/queue"
	"github.com/maukemana/catalog/internal/utils"
)

// PhotoHandler exposes the catalog orchestrator's photo operations.
type PhotoHandler struct {
	cat *catalog.Catalog
}

func NewPhotoHandler(cat *catalog.Catalog) *PhotoHandler {
	return &PhotoHandler{cat: cat}
}

// GetPhoto returns a single photo by id.
func (h *PhotoHandler) GetPhoto(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid photo id", err)
		return
	}
	photo, err := h.cat.GetAsset(c.Request.Context(), id)
	if err != nil {
		sendCatalogError(c, err)
		return
	}
	if photo == nil {
		utils.SendError(c, http.StatusNotFound, "photo not found", nil)
		return
	}
	utils.SendSuccess(c, "photo retrieved", photo)
}

// ListPhotos returns a folder's photos a page at a time. GetAssets loads
// the folder's full listing from the repository, and pagination here just
// slices that result rather than pushing LIMIT/OFFSET down to the query. folder_id sits on the query string rather than
// the path so this can live in the /photos group without colliding with
// /photos/:id in gin's routing tree.
func (h *PhotoHandler) ListPhotos(c *gin.Context) {
	folderID, err := uuid.Parse(c.Query("folder_id"))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid or missing folder_id", err)
		return
	}
	photos, err := h.cat.GetAssets(c.Request.Context(), folderID)
	if err != nil {
		sendCatalogError(c, err)
		return
	}

	page, limit := utils.GetPagination(c)
	offset := utils.GetOffset(page, limit)
	total := len(photos)
	end := offset + limit
	if offset > total {
		offset = total
	}
	if end > total {
		end = total
	}
	utils.SendPaginated(c, "photos retrieved", photos[offset:end], page, limit, total)
}

// SetFlag sets a single photo's culling mark (none, pick, or reject).
func (h *PhotoHandler) SetFlag(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid photo id", err)
		return
	}
	var body struct {
		Flag models.Flag `json:"flag" binding:"required,oneof=none pick reject"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.SendValidationError(c, err)
		return
	}
	if err := h.cat.SetFlag(c.Request.Context(), id, body.Flag); err != nil {
		sendCatalogError(c, err)
		return
	}
	utils.SendSuccess(c, "flag updated", gin.H{"id": id, "flag": body.Flag})
}

// SetFlagBatch sets the same culling mark across a set of photos.
func (h *PhotoHandler) SetFlagBatch(c *gin.Context) {
	var body struct {
		IDs  []uuid.UUID `json:"ids" binding:"required"`
		Flag models.Flag `json:"flag" binding:"required,oneof=none pick reject"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.SendValidationError(c, err)
		return
	}
	if err := h.cat.SetFlagBatch(c.Request.Context(), body.IDs, body.Flag); err != nil {
		sendCatalogError(c, err)
		return
	}
	utils.SendSuccess(c, "flags updated", gin.H{"ids": body.IDs, "flag": body.Flag})
}

// RemovePhotos deletes a batch of photos outright.
func (h *PhotoHandler) RemovePhotos(c *gin.Context) {
	var body struct {
		IDs []uuid.UUID `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.SendValidationError(c, err)
		return
	}
	if err := h.cat.RemoveAssets(c.Request.Context(), body.IDs); err != nil {
		sendCatalogError(c, err)
		return
	}
	utils.SendSuccess(c, "photos removed", gin.H{"ids": body.IDs})
}

// RequestThumbnail asks the pipeline for a thumbnail, returning the cached
// URL immediately on a hit or 202 Accepted once the job is queued.
func (h *PhotoHandler) RequestThumbnail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid photo id", err)
		return
	}
	priority := priorityFromQuery(c)
	url, ready, err := h.cat.RequestThumbnail(c.Request.Context(), id, priority)
	if err != nil {
		sendCatalogError(c, err)
		return
	}
	if ready {
		utils.SendSuccess(c, "thumbnail ready", gin.H{"url": url})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// RequestPreview mirrors RequestThumbnail for the preview artifact.
func (h *PhotoHandler) RequestPreview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid photo id", err)
		return
	}
	priority := priorityFromQuery(c)
	url, ready, err := h.cat.RequestPreview(c.Request.Context(), id, priority)
	if err != nil {
		sendCatalogError(c, err)
		return
	}
	if ready {
		utils.SendSuccess(c, "preview ready", gin.H{"url": url})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// UpdatePriority re-targets an already-queued thumbnail or preview request.
func (h *PhotoHandler) UpdatePriority(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid photo id", err)
		return
	}
	kind := c.Param("kind")
	priority := priorityFromQuery(c)
	switch kind {
	case "thumbnail":
		h.cat.UpdateThumbnailPriority(id, priority)
	case "preview":
		h.cat.UpdatePreviewPriority(id, priority)
	default:
		utils.SendError(c, http.StatusBadRequest, "kind must be thumbnail or preview", nil)
		return
	}
	utils.SendSuccess(c, "priority updated", gin.H{"id": id, "kind": kind, "priority": priority})
}

// CancelBackgroundRequests drops every queued Background-priority request.
func (h *PhotoHandler) CancelBackgroundRequests(c *gin.Context) {
	n := h.cat.CancelBackgroundRequests()
	utils.SendSuccess(c, "background requests cancelled", gin.H{"cancelled": n})
}

// RegenerateThumbnail stores a new edit-state payload and re-renders the
// thumbnail from it.
func (h *PhotoHandler) RegenerateThumbnail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid photo id", err)
		return
	}
	var body struct {
		EditState json.RawMessage `json:"edit_state" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.SendValidationError(c, err)
		return
	}
	priority := priorityFromQuery(c)
	if err := h.cat.RegenerateThumbnail(c.Request.Context(), id, priority, body.EditState); err != nil {
		sendCatalogError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func priorityFromQuery(c *gin.Context) queue.Priority {
	switch c.Query("priority") {
	case "near_visible":
		return queue.NearVisible
	case "preload":
		return queue.Preload
	case "background":
		return queue.Background
	default:
		return queue.Visible
	}
}

func sendCatalogError(c *gin.Context, err error) {
	switch catalogerr.KindOf(err) {
	case catalogerr.KindFolderNotFound:
		utils.SendError(c, http.StatusNotFound, err.Error(), err)
	case catalogerr.KindPermissionDenied:
		utils.SendError(c, http.StatusForbidden, err.Error(), err)
	case catalogerr.KindScanCancelled:
		utils.SendError(c, http.StatusConflict, err.Error(), err)
	default:
		utils.SendInternalError(c, err)
	}
}
