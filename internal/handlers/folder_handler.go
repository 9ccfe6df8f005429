package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/catalog"
	"github.com/maukemana/catalog/internal/utils"
)

func sendCatalogErrorLog(folderID uuid.UUID, err error) {
	slog.Error("background scan failed", "folder_id", folderID, "error", err)
}

// FolderHandler exposes folder selection, listing, scanning, and rescan
// cancellation.
type FolderHandler struct {
	cat *catalog.Catalog
}

func NewFolderHandler(cat *catalog.Catalog) *FolderHandler {
	return &FolderHandler{cat: cat}
}

// SelectFolder registers a new (or existing) folder path.
func (h *FolderHandler) SelectFolder(c *gin.Context) {
	var body struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.SendValidationError(c, err)
		return
	}
	folder, created, err := h.cat.SelectFolder(c.Request.Context(), body.Path)
	if err != nil {
		sendCatalogError(c, err)
		return
	}
	if created {
		utils.SendCreated(c, "folder registered", folder)
		return
	}
	utils.SendSuccess(c, "folder selected", folder)
}

// ListFolders returns every known folder.
func (h *FolderHandler) ListFolders(c *gin.Context) {
	folders, err := h.cat.ListFolders(c.Request.Context())
	if err != nil {
		sendCatalogError(c, err)
		return
	}
	utils.SendSuccess(c, "folders retrieved", folders)
}

// GetFolder returns a single folder by id.
func (h *FolderHandler) GetFolder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid folder id", err)
		return
	}
	folder, err := h.cat.LoadFolderByID(c.Request.Context(), id)
	if err != nil {
		sendCatalogError(c, err)
		return
	}
	if folder == nil {
		utils.SendError(c, http.StatusNotFound, "folder not found", nil)
		return
	}
	utils.SendSuccess(c, "folder retrieved", folder)
}

// Scan kicks off a scan of a folder's tree in the background.
func (h *FolderHandler) Scan(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid folder id", err)
		return
	}
	go func() {
		if err := h.cat.ScanFolder(id); err != nil {
			sendCatalogErrorLog(id, err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "scanning", "folder_id": id})
}

// Rescan re-walks a folder's tree, reconciling with what is cataloged.
func (h *FolderHandler) Rescan(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid folder id", err)
		return
	}
	go func() {
		if err := h.cat.RescanFolder(id); err != nil {
			sendCatalogErrorLog(id, err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "rescanning", "folder_id": id})
}

// CancelScan aborts an in-progress scan.
func (h *FolderHandler) CancelScan(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid folder id", err)
		return
	}
	h.cat.CancelScan(id)
	utils.SendSuccess(c, "scan cancelled", gin.H{"folder_id": id})
}
