package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"notigate/internal/model"
)

type wireNotification struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Type      string         `json:"type"`
	Category  string         `json:"category"`
	Priority  string         `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata"`
	Actions   []model.Action `json:"actions"`
}

type wireBatch struct {
	Notifications []wireNotification    `json:"notifications"`
	Context       model.ContextSnapshot `json:"context"`
}

// DecodeBatch parses and validates one JSON batch. Notifications with
// invalid enum values are dropped and counted; a missing id is assigned,
// a missing timestamp defaults to now. Metadata is normalized here so
// the pipeline never sees untyped values.
func DecodeBatch(data []byte) (Batch, int, error) {
	var wire wireBatch
	if err := json.Unmarshal(data, &wire); err != nil {
		return Batch{}, 0, err
	}
	batch := Batch{
		Notifications: make([]model.Notification, 0, len(wire.Notifications)),
		Context:       wire.Context,
	}
	failed := 0
	for _, wn := range wire.Notifications {
		n, err := normalize(wn)
		if err != nil {
			failed++
			continue
		}
		batch.Notifications = append(batch.Notifications, n)
	}
	return batch, failed, nil
}

func normalize(wn wireNotification) (model.Notification, error) {
	n := model.Notification{
		ID:        strings.TrimSpace(wn.ID),
		Title:     strings.TrimSpace(wn.Title),
		Message:   wn.Message,
		Type:      model.Type(strings.ToLower(strings.TrimSpace(wn.Type))),
		Category:  model.Category(strings.ToLower(strings.TrimSpace(wn.Category))),
		Priority:  model.Priority(strings.ToLower(strings.TrimSpace(wn.Priority))),
		CreatedAt: wn.CreatedAt,
		Metadata:  model.ParseMetadata(wn.Metadata),
		Actions:   wn.Actions,
	}
	if !n.Type.Valid() {
		return model.Notification{}, fmt.Errorf("invalid type %q", wn.Type)
	}
	if !n.Category.Valid() {
		return model.Notification{}, fmt.Errorf("invalid category %q", wn.Category)
	}
	if !n.Priority.Valid() {
		return model.Notification{}, fmt.Errorf("invalid priority %q", wn.Priority)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return n, nil
}
