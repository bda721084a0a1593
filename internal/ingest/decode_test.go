package ingest

import (
	"testing"
	"time"

	"notigate/internal/model"
)

func TestDecodeBatch(t *testing.T) {
	data := []byte(`{
		"notifications": [
			{
				"id": "n1",
				"title": "Build failed",
				"message": "pipeline 42 failed in deploy",
				"type": "ERROR",
				"category": "Workflow",
				"priority": "high",
				"created_at": "2026-08-20T10:00:00Z",
				"metadata": {"workflowId": "wf-42", "responseTimeMs": 120}
			},
			{
				"title": "Disk almost full",
				"type": "warning",
				"category": "system",
				"priority": "medium"
			}
		],
		"context": {
			"user_session": {"user_id": "u1", "role": "developer"}
		}
	}`)
	batch, failed, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if failed != 0 {
		t.Fatalf("expected no failures, got %d", failed)
	}
	if len(batch.Notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(batch.Notifications))
	}

	first := batch.Notifications[0]
	if first.ID != "n1" || first.Type != model.TypeError || first.Category != model.CategoryWorkflow {
		t.Fatalf("enum case folding failed: %+v", first)
	}
	if first.Metadata.WorkflowID != "wf-42" {
		t.Fatalf("metadata not lifted: %+v", first.Metadata)
	}
	if first.Metadata.ResponseTime != 120*time.Millisecond {
		t.Fatalf("numeric metadata not lifted: %+v", first.Metadata)
	}
	if !first.CreatedAt.Equal(time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("created_at not preserved: %v", first.CreatedAt)
	}

	second := batch.Notifications[1]
	if second.ID == "" {
		t.Fatalf("missing id must be assigned")
	}
	if second.CreatedAt.IsZero() {
		t.Fatalf("missing created_at must default to now")
	}

	if batch.Context.UserSession == nil || batch.Context.UserSession.UserID != "u1" {
		t.Fatalf("context not decoded: %+v", batch.Context)
	}
}

func TestDecodeBatchDropsInvalidEnums(t *testing.T) {
	data := []byte(`{
		"notifications": [
			{"title": "ok", "type": "info", "category": "system", "priority": "low"},
			{"title": "bad type", "type": "banana", "category": "system", "priority": "low"},
			{"title": "bad priority", "type": "info", "category": "system", "priority": "urgent"},
			{"title": "bad category", "type": "info", "category": "gossip", "priority": "low"}
		]
	}`)
	batch, failed, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if failed != 3 {
		t.Fatalf("expected 3 dropped notifications, got %d", failed)
	}
	if len(batch.Notifications) != 1 || batch.Notifications[0].Title != "ok" {
		t.Fatalf("valid notification lost: %+v", batch.Notifications)
	}
}

func TestDecodeBatchMalformedJSON(t *testing.T) {
	if _, _, err := DecodeBatch([]byte(`{"notifications": [`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestDecodeBatchUnknownMetadataKeys(t *testing.T) {
	data := []byte(`{
		"notifications": [
			{"title": "t", "type": "info", "category": "system", "priority": "low",
			 "metadata": {"userEngaged": true, "custom_tag": "blue"}}
		]
	}`)
	batch, _, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	md := batch.Notifications[0].Metadata
	if !md.UserEngaged {
		t.Fatalf("userEngaged not lifted: %+v", md)
	}
	if md.Extra["custom_tag"] != "blue" {
		t.Fatalf("unrecognized keys must be preserved in Extra: %+v", md.Extra)
	}
}
