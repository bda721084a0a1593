package scoring

import (
	"fmt"
	"time"

	"notigate/internal/config"
	"notigate/internal/model"
)

// Score is the full verdict for one notification in one context.
type Score struct {
	Relevance          float64  `json:"relevance"`
	PriorityAdjustment float64  `json:"priority_adjustment"`
	Recommendations    []string `json:"recommendations,omitempty"`
	RiskFactors        []string `json:"risk_factors,omitempty"`
	Opportunities      []string `json:"opportunities,omitempty"`
}

// ContextScorer computes relevance as a weighted sum of five
// independently clamped sub-scores. A missing context sub-record
// contributes zero to its dimension; it is never an error.
type ContextScorer struct {
	weights config.WeightsConfig
}

func NewContextScorer(weights config.WeightsConfig) *ContextScorer {
	zero := config.WeightsConfig{}
	if weights == zero {
		weights = config.DefaultConfig().Scoring.Weights
	}
	return &ContextScorer{weights: weights}
}

func (s *ContextScorer) Score(n model.Notification, snapshot model.ContextSnapshot) Score {
	out := Score{}

	role := s.userRoleScore(n, snapshot.UserSession, &out)
	workflow := s.workflowScore(n, snapshot.Workflow, &out)
	system := s.systemScore(n, snapshot.System, &out)
	timeOfDay := s.timeScore(n, snapshot.Time)
	history := s.historyScore(n, snapshot.History, &out)

	relevance := s.weights.UserRole*role +
		s.weights.WorkflowPhase*workflow +
		s.weights.SystemStatus*system +
		s.weights.TimeContext*timeOfDay +
		s.weights.HistoricalPatterns*history
	out.Relevance = clamp01(relevance)
	out.PriorityAdjustment = s.priorityAdjustment(n, snapshot)

	if out.Relevance >= 0.7 {
		out.Recommendations = append(out.Recommendations, "deliver promptly: high contextual relevance")
	}
	return out
}

var roleAffinity = map[string]map[model.Category]float64{
	"developer": {
		model.CategoryWorkflow:    0.8,
		model.CategoryPerformance: 0.6,
	},
	"admin": {
		model.CategorySystem:   0.9,
		model.CategorySecurity: 0.8,
	},
	"manager": {
		model.CategoryBusiness: 0.7,
		model.CategoryWorkflow: 0.4,
	},
}

func (s *ContextScorer) userRoleScore(n model.Notification, sess *model.UserSession, out *Score) float64 {
	if sess == nil {
		return 0
	}
	score := 0.0
	if affinities, ok := roleAffinity[sess.Role]; ok {
		if bonus, ok := affinities[n.Category]; ok {
			score += bonus
			out.Opportunities = append(out.Opportunities,
				fmt.Sprintf("%s role has strong affinity for %s notifications", sess.Role, n.Category))
		}
	}
	if perm := n.Metadata.RequiresPermission; perm != "" {
		if sess.HasPermission(perm) {
			score += 0.2
		} else {
			score -= 0.3
			out.RiskFactors = append(out.RiskFactors,
				fmt.Sprintf("user lacks required permission %q", perm))
		}
	}
	switch since := time.Since(sess.LastActiveAt); {
	case since < time.Hour:
		score += 0.3
	case since < 24*time.Hour:
		score += 0.15
	default:
		score += 0.05
	}
	return clamp01(score)
}

func (s *ContextScorer) workflowScore(n model.Notification, wf *model.WorkflowContext, out *Score) float64 {
	if wf == nil {
		return 0
	}
	score := 0.0
	if n.Metadata.WorkflowID != "" && n.Metadata.WorkflowID == wf.WorkflowID {
		score += 0.9
		out.Opportunities = append(out.Opportunities, "notification belongs to the active workflow")
	} else if n.Metadata.Phase != "" && n.Metadata.Phase == wf.Phase {
		score += 0.6
	}
	switch {
	case wf.Status == "failed" && n.Type == model.TypeError:
		score += 0.8
		out.RiskFactors = append(out.RiskFactors, "error notification during a failed workflow")
	case wf.Status == "running" && n.Type == model.TypeInfo:
		score += 0.3
	case wf.Status == "completed" && n.Type == model.TypeSuccess:
		score += 0.5
	}
	switch {
	case wf.Progress >= 0.9:
		score += 0.3
	case wf.Progress <= 0.1 && wf.Status == "running":
		score += 0.2
	}
	return clamp01(score)
}

var systemStatusAffinity = map[model.SystemStatus]map[model.Type]float64{
	model.SystemUnhealthy: {
		model.TypeError:   0.9,
		model.TypeWarning: 0.7,
	},
	model.SystemDegraded: {
		model.TypeError:   0.7,
		model.TypeWarning: 0.5,
	},
	model.SystemMaintenance: {
		model.TypeInfo: 0.4,
	},
	model.SystemHealthy: {
		model.TypeInfo: 0.2,
	},
}

func (s *ContextScorer) systemScore(n model.Notification, sys *model.SystemContext, out *Score) float64 {
	if sys == nil {
		return 0
	}
	score := 0.0
	if n.Category == model.CategorySystem {
		if byType, ok := systemStatusAffinity[sys.Status]; ok {
			score += byType[n.Type]
		}
		if sys.Status == model.SystemUnhealthy {
			out.RiskFactors = append(out.RiskFactors, "system is unhealthy")
		}
	}
	if n.Category == model.CategoryPerformance {
		if sys.Load > 0.8 {
			score += 0.4
		}
		if sys.MemoryUsage > 0.85 {
			score += 0.4
		}
		if sys.ErrorRate > 0.05 {
			score += 0.3
		}
	}
	return clamp01(score)
}

func (s *ContextScorer) timeScore(n model.Notification, tc *model.TimeContext) float64 {
	if tc == nil {
		return 0
	}
	score := 0.0
	if tc.IsBusinessHours {
		score += 0.5
	}
	if tc.IsWeekend {
		score -= 0.2
	} else {
		score += 0.2
	}
	switch {
	case tc.Hour >= 9 && tc.Hour < 18:
		score += 0.2
	case tc.Hour >= 18 && tc.Hour < 23:
		score += 0.1
	}
	return clamp01(score)
}

func (s *ContextScorer) historyScore(n model.Notification, h *model.HistoryContext, out *Score) float64 {
	if h == nil {
		return 0
	}
	score := 0.5
	switch volume := len(h.RecentNotifications); {
	case volume > 20:
		score -= 0.3
		out.RiskFactors = append(out.RiskFactors, "high recent notification volume")
	case volume > 10:
		score -= 0.15
	}
	if rate, ok := h.EngagementByCategory[n.Category]; ok {
		if rate > meanEngagement(h.EngagementByCategory) {
			score += 0.3
			out.Opportunities = append(out.Opportunities,
				fmt.Sprintf("user engages above average with %s notifications", n.Category))
		}
	}
	if pref, ok := h.PreferencesByCategory[n.Category]; ok {
		if pref {
			score += 0.4
		} else {
			score -= 0.5
		}
	}
	return clamp01(score)
}

func meanEngagement(byCategory map[model.Category]float64) float64 {
	if len(byCategory) == 0 {
		return 0
	}
	total := 0.0
	for _, rate := range byCategory {
		total += rate
	}
	return total / float64(len(byCategory))
}

// priorityAdjustment starts from a fixed per-priority base delta and
// adds contextual deltas, clamped to [-1, 1].
func (s *ContextScorer) priorityAdjustment(n model.Notification, snapshot model.ContextSnapshot) float64 {
	adj := 0.0
	switch n.Priority {
	case model.PriorityCritical:
		adj = 0
	case model.PriorityHigh:
		adj = 0.1
	case model.PriorityMedium:
		adj = 0.2
	case model.PriorityLow:
		adj = 0.3
	}
	if sess := snapshot.UserSession; sess != nil && sess.Role == "admin" && n.Category == model.CategorySystem {
		adj += 0.2
	}
	if wf := snapshot.Workflow; wf != nil && wf.Status == "failed" && n.Type == model.TypeError {
		adj += 0.3
	}
	if sys := snapshot.System; sys != nil && sys.Status == model.SystemUnhealthy && n.Category == model.CategorySystem {
		adj += 0.3
	}
	if tc := snapshot.Time; tc != nil && tc.IsWeekend && n.Priority == model.PriorityLow {
		adj -= 0.2
	}
	return clampSigned(adj)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
