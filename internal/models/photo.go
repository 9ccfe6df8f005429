package models

import (
	"time"

	"github.com/google/uuid"
)

// Folder is a directory the catalog has scanned or is scanning.
type Folder struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Path       string     `json:"path" db:"path"`
	LastScanAt *time.Time `json:"last_scan_at,omitempty" db:"last_scan_at"`
	PhotoCount int        `json:"photo_count" db:"photo_count"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// PhotoStatus tracks where a photo's derived artifacts stand.
type PhotoStatus string

const (
	PhotoStatusPending PhotoStatus = "pending"
	PhotoStatusLoading PhotoStatus = "loading"
	PhotoStatusReady   PhotoStatus = "ready"
	PhotoStatusError   PhotoStatus = "error"
)

// Flag is a photo's culling mark, the Lightroom-style pick/reject
// distinction a photographer uses to sort a shoot.
type Flag string

const (
	FlagNone   Flag = "none"
	FlagPick   Flag = "pick"
	FlagReject Flag = "reject"
)

// Photo is a single cataloged image file.
type Photo struct {
	ID       uuid.UUID `json:"id" db:"id"`
	FolderID uuid.UUID `json:"folder_id" db:"folder_id"`
	// Path is relative to the owning folder's handle, not absolute — a
	// photo's bytes are read by joining the folder's current handle path
	// (which can change across a rescan or a restart) with this.
	Path        string    `json:"path" db:"path"`
	Filename    string    `json:"filename" db:"filename"`
	Format      string    `json:"format" db:"format"`
	Width       int       `json:"width" db:"width"`
	Height      int       `json:"height" db:"height"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	ModifiedAt  time.Time `json:"modified_at" db:"modified_at"`
	Flag        Flag      `json:"flag" db:"flag"`

	ThumbnailStatus PhotoStatus `json:"thumbnail_status" db:"thumbnail_status"`
	ThumbnailURL    string      `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	PreviewStatus   PhotoStatus `json:"preview_status" db:"preview_status"`
	PreviewURL      string      `json:"preview_url,omitempty" db:"preview_url"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PhotoEdit is a stored opaque edit-state payload applied to a photo's
// thumbnail (crop, exposure, etc.). Neither the repository nor the
// scheduler interpret its contents — only the decode adapter does.
type PhotoEdit struct {
	PhotoID   uuid.UUID `json:"photo_id" db:"photo_id"`
	EditState []byte    `json:"edit_state" db:"edit_state"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
