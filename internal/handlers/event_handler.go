package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/catalog"
)

// EventHandler streams catalog events to clients over Server-Sent Events,
// the headless equivalent of in-process event sinks.
type EventHandler struct {
	cat *catalog.Catalog
}

func NewEventHandler(cat *catalog.Catalog) *EventHandler {
	return &EventHandler{cat: cat}
}

type wireEvent struct {
	Kind     string      `json:"kind"`
	FolderID string      `json:"folder_id,omitempty"`
	Photo    interface{} `json:"photo,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Stream keeps the connection open and pushes one "event:" frame per
// catalog Event until the client disconnects.
func (h *EventHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	events := make(chan catalog.Event, 64)
	h.cat.Subscribe(func(e catalog.Event) {
		select {
		case events <- e:
		default:
		}
	})

	ctx := c.Request.Context()
	c.Stream(func(w gin.ResponseWriter) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}
			we := wireEvent{Kind: string(e.Kind)}
			if e.FolderID != uuid.Nil {
				we.FolderID = e.FolderID.String()
			}
			if e.Photo != nil {
				we.Photo = e.Photo
			}
			if e.Err != nil {
				we.Error = e.Err.Error()
			}
			payload, _ := json.Marshal(we)
			c.SSEvent("message", string(payload))
			return true
		}
	})
}
