package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recognized metadata keys. Anything else rides along in Extra.
const (
	MetaRequiresPermission = "requiresPermission"
	MetaWorkflowID         = "workflowId"
	MetaPhase              = "phase"
	MetaUserEngaged        = "userEngaged"
	MetaResponseTimeMs     = "responseTimeMs"
)

// Metadata is the validated form of a notification's open metadata bag.
// Recognized keys are lifted into typed fields at ingress so the
// pipeline never does untyped lookups.
type Metadata struct {
	RequiresPermission string            `json:"requires_permission,omitempty"`
	WorkflowID         string            `json:"workflow_id,omitempty"`
	Phase              string            `json:"phase,omitempty"`
	UserEngaged        bool              `json:"user_engaged,omitempty"`
	ResponseTime       time.Duration     `json:"response_time,omitempty"`
	Extra              map[string]string `json:"extra,omitempty"`
}

// ParseMetadata normalizes a raw metadata map. Recognized keys are
// coerced to their documented types; unrecognized keys are stringified
// into Extra.
func ParseMetadata(raw map[string]any) Metadata {
	var md Metadata
	for key, val := range raw {
		switch key {
		case MetaRequiresPermission:
			md.RequiresPermission = asString(val)
		case MetaWorkflowID:
			md.WorkflowID = asString(val)
		case MetaPhase:
			md.Phase = asString(val)
		case MetaUserEngaged:
			md.UserEngaged = asBool(val)
		case MetaResponseTimeMs:
			md.ResponseTime = time.Duration(asFloat(val)) * time.Millisecond
		default:
			if md.Extra == nil {
				md.Extra = make(map[string]string)
			}
			md.Extra[key] = asString(val)
		}
	}
	return md
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case float64:
		return t != 0
	}
	return false
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	}
	return 0
}
