package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"notigate/internal/config"
	"notigate/internal/model"
	"notigate/internal/predict"
	"notigate/internal/rules"
	"notigate/internal/scoring"
)

// FallbackRecommendation is appended verbatim when a stage failure
// forces rule-only filtering.
const FallbackRecommendation = "ML filtering unavailable - using basic filtering"

// fallbackConfidence marks a degraded run. It is the only way a result
// carries exactly 0.5.
const fallbackConfidence = 0.5

const predictConcurrency = 8

// Pipeline runs the fixed stage sequence: rule filtering, context
// filtering, optional prediction, optional behavior filtering, rate
// limiting, then explanation/recommendation. Only the behavior cache
// is mutable state; everything else is per-call.
type Pipeline struct {
	cfg          config.PipelineConfig
	fatigueLimit int
	logger       *slog.Logger
	rules        *rules.RuleFilter
	scorer       *scoring.ContextScorer
	predictor    predict.RelevancePredictor
	cache        *behaviorCache

	pendingStore BehaviorStore
}

type Option func(*Pipeline)

func WithPredictor(p predict.RelevancePredictor) Option {
	return func(pl *Pipeline) { pl.predictor = p }
}

func WithBehaviorStore(s BehaviorStore) Option {
	return func(pl *Pipeline) { pl.pendingStore = s }
}

func WithRuleFilter(f *rules.RuleFilter) Option {
	return func(pl *Pipeline) { pl.rules = f }
}

func New(cfg config.PipelineConfig, scoringCfg config.ScoringConfig, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if cfg.MinConfidenceThreshold < 0 || cfg.MinConfidenceThreshold > 1 {
		return nil, &ConfigError{Field: "min_confidence_threshold", Reason: "must be in [0,1]"}
	}
	if cfg.MaxNotificationsPerHour < 0 {
		return nil, &ConfigError{Field: "max_notifications_per_hour", Reason: "must be >= 0"}
	}
	if cfg.PredictTimeout <= 0 {
		cfg.PredictTimeout = 2 * time.Second
	}
	fatigueLimit := scoringCfg.FatigueBatchLimit
	if fatigueLimit <= 0 {
		fatigueLimit = 10
	}
	p := &Pipeline{
		cfg:          cfg,
		fatigueLimit: fatigueLimit,
		logger:       logger,
		scorer:       scoring.NewContextScorer(scoringCfg.Weights),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rules == nil {
		p.rules = rules.NewRuleFilter(logger)
	}
	cache, err := newBehaviorCache(cfg.BehaviorCacheSize, p.pendingStore)
	if err != nil {
		return nil, &ConfigError{Field: "behavior_cache_size", Reason: err.Error()}
	}
	p.cache = cache
	return p, nil
}

// Filter decides delivery for one batch. Stage failures never surface
// as errors: the result degrades to rule-only filtering instead.
// Cancellation returns the best result from the last completed stage,
// flagged degraded.
func (p *Pipeline) Filter(ctx context.Context, notifications []model.Notification, snapshot model.ContextSnapshot) model.PipelineResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(notifications) == 0 {
		return model.PipelineResult{
			Notifications: []model.Notification{},
			Stats:         model.PipelineStats{MLConfidence: 1},
			Explanations:  map[string][]string{},
		}
	}
	result, err := p.runStages(ctx, notifications, snapshot)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("pipeline stage failed, falling back to rule filtering", "err", err)
		}
		return p.fallback(notifications, snapshot)
	}
	return result
}

func (p *Pipeline) runStages(ctx context.Context, notifications []model.Notification, snapshot model.ContextSnapshot) (result model.PipelineResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panic: %v", r)
		}
	}()

	reasons := make(map[string][]string, len(notifications))
	working := notifications
	contextScores := make(map[string]float64)
	predictScores := make(map[string]float64)
	var pattern *model.UserBehaviorPattern

	// Stage 1: rule filtering with context-derived criteria, then the
	// rule filter's trailing duplicate/spam gate.
	criteria := p.buildCriteria(snapshot)
	ruleRes := p.rules.Filter(working, criteria)
	mergeReasons(reasons, ruleRes.ExclusionReasons)
	working = ruleRes.Included

	gateRes := p.rules.ApplyContentGate(ctx, working, snapshot)
	mergeReasons(reasons, gateRes.ExclusionReasons)
	working = gateRes.Included

	if ctx.Err() != nil {
		return p.finish(notifications, working, snapshot, reasons, contextScores, predictScores, pattern, true), nil
	}

	// Stage 2: context relevance threshold.
	if p.cfg.EnableContextFiltering {
		kept := working[:0:0]
		for _, n := range working {
			score := p.scorer.Score(n, snapshot)
			contextScores[n.ID] = score.Relevance
			if score.Relevance >= p.cfg.MinConfidenceThreshold {
				kept = append(kept, n)
				continue
			}
			reasons[n.ID] = append(reasons[n.ID],
				fmt.Sprintf("context relevance %.2f below threshold %.2f", score.Relevance, p.cfg.MinConfidenceThreshold))
		}
		working = kept
	}

	if ctx.Err() != nil {
		return p.finish(notifications, working, snapshot, reasons, contextScores, predictScores, pattern, true), nil
	}

	// Stage 3: optional prediction. Per-item errors and timeouts pass
	// the item through; a panicking predictor fails the stage.
	if p.cfg.EnableMLFiltering && p.predictor != nil {
		if err := p.predictStage(ctx, working, snapshot, reasons, predictScores); err != nil {
			return model.PipelineResult{}, err
		}
		kept := working[:0:0]
		for _, n := range working {
			if score, ok := predictScores[n.ID]; ok && score < p.cfg.MinConfidenceThreshold {
				reasons[n.ID] = append(reasons[n.ID],
					fmt.Sprintf("predicted relevance %.2f below threshold %.2f", score, p.cfg.MinConfidenceThreshold))
				continue
			}
			kept = append(kept, n)
		}
		working = kept
	}

	if ctx.Err() != nil {
		return p.finish(notifications, working, snapshot, reasons, contextScores, predictScores, pattern, true), nil
	}

	// Stage 4: behavior filtering against the cached per-user pattern.
	if p.cfg.EnableBehaviorAnalysis && snapshot.UserSession != nil && snapshot.UserSession.UserID != "" {
		var history []model.Notification
		if snapshot.History != nil {
			history = snapshot.History.RecentNotifications
		}
		bp := p.cache.pattern(ctx, snapshot.UserSession.UserID, history)
		pattern = &bp
		working = p.behaviorStage(bp, working, reasons)
	}

	if ctx.Err() != nil {
		return p.finish(notifications, working, snapshot, reasons, contextScores, predictScores, pattern, true), nil
	}

	// Stage 5: priority-aware rate limiting.
	limited := p.rules.ApplyRateLimit(working, p.cfg.MaxNotificationsPerHour)
	if len(limited) < len(working) {
		kept := idSet(limited)
		for _, n := range working {
			if _, ok := kept[n.ID]; !ok {
				reasons[n.ID] = append(reasons[n.ID], "hourly notification limit reached")
			}
		}
	}
	working = limited

	return p.finish(notifications, working, snapshot, reasons, contextScores, predictScores, pattern, false), nil
}

func (p *Pipeline) predictStage(ctx context.Context, working []model.Notification, snapshot model.ContextSnapshot, reasons map[string][]string, predictScores map[string]float64) error {
	scores := make([]float64, len(working))
	scored := make([]bool, len(working))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(predictConcurrency)
	for i, n := range working {
		i, n := i, n
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("predictor panic: %v", r)
				}
			}()
			callCtx, cancel := context.WithTimeout(gctx, p.cfg.PredictTimeout)
			defer cancel()
			score, perr := p.predictor.Predict(callCtx, n, snapshot)
			if perr != nil {
				// conservative pass-through
				if p.logger != nil {
					p.logger.Warn("predictor error, including notification", "id", n.ID, "err", perr)
				}
				return nil
			}
			scores[i] = score
			scored[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, n := range working {
		if scored[i] {
			predictScores[n.ID] = clamp01(scores[i])
		}
	}
	return nil
}

func (p *Pipeline) behaviorStage(pattern model.UserBehaviorPattern, working []model.Notification, reasons map[string][]string) []model.Notification {
	kept := working[:0:0]
	fatigued := p.cfg.MaxNotificationsPerHour > 0 && pattern.FatigueCount > p.cfg.MaxNotificationsPerHour
	for _, n := range working {
		if len(pattern.PreferredCategories) > 0 && !pattern.PrefersCategory(n.Category) {
			reasons[n.ID] = append(reasons[n.ID],
				fmt.Sprintf("category %q outside user's preferred categories", n.Category))
			continue
		}
		if len(pattern.PreferredTypes) > 0 && !pattern.PrefersType(n.Type) {
			reasons[n.ID] = append(reasons[n.ID],
				fmt.Sprintf("type %q outside user's preferred types", n.Type))
			continue
		}
		if fatigued && n.Priority.Rank() > model.PriorityHigh.Rank() {
			reasons[n.ID] = append(reasons[n.ID],
				fmt.Sprintf("user fatigued (%d notifications in 24h): only critical and high delivered", pattern.FatigueCount))
			continue
		}
		kept = append(kept, n)
	}
	return kept
}

// finish assembles the result. Explanation and recommendation failures
// are swallowed; they never fail the call.
func (p *Pipeline) finish(input, final []model.Notification, snapshot model.ContextSnapshot, reasons map[string][]string, contextScores, predictScores map[string]float64, pattern *model.UserBehaviorPattern, degraded bool) model.PipelineResult {
	result := model.PipelineResult{
		Notifications: final,
		Stats: model.PipelineStats{
			Total:        len(input),
			Filtered:     len(input) - len(final),
			MLConfidence: p.confidence(final, contextScores, predictScores),
			Degraded:     degraded,
		},
		Explanations: map[string][]string{},
	}
	if len(input) > 0 {
		result.Stats.InclusionRate = float64(len(final)) / float64(len(input))
	}
	func() {
		defer func() { _ = recover() }()
		kept := idSet(final)
		for id, rs := range reasons {
			if _, ok := kept[id]; !ok {
				result.Explanations[id] = rs
			}
		}
		result.Recommendations = p.recommend(input, snapshot, pattern)
	}()
	return result
}

func (p *Pipeline) confidence(final []model.Notification, contextScores, predictScores map[string]float64) float64 {
	if mean, ok := meanOver(final, predictScores); ok {
		return mean
	}
	if mean, ok := meanOver(final, contextScores); ok {
		return mean
	}
	return 1
}

func meanOver(set []model.Notification, scores map[string]float64) (float64, bool) {
	if len(scores) == 0 {
		return 0, false
	}
	total, count := 0.0, 0
	for _, n := range set {
		if score, ok := scores[n.ID]; ok {
			total += score
			count++
		}
	}
	if count == 0 {
		// nothing survived; average over everything scored
		for _, score := range scores {
			total += score
			count++
		}
	}
	return clamp01(total / float64(count)), true
}

func (p *Pipeline) recommend(input []model.Notification, snapshot model.ContextSnapshot, pattern *model.UserBehaviorPattern) []string {
	var recs []string
	critical := 0
	byCategory := make(map[model.Category]int)
	for _, n := range input {
		if n.Priority == model.PriorityCritical {
			critical++
		}
		byCategory[n.Category]++
	}
	if critical > 3 {
		recs = append(recs, fmt.Sprintf("%d critical notifications in one batch: review alerting thresholds", critical))
	}
	if len(input) >= 5 {
		for category, count := range byCategory {
			if frac := float64(count) / float64(len(input)); frac > 0.6 {
				recs = append(recs, fmt.Sprintf("category %q accounts for %.0f%% of this batch: consider consolidation", category, frac*100))
			}
		}
	}
	if snapshot.Time != nil && snapshot.Time.IsWeekend && len(input) > 5 {
		recs = append(recs, "high weekend volume: consider deferring low-priority notifications")
	}
	if pattern != nil && pattern.FatigueCount > p.fatigueLimit {
		recs = append(recs, fmt.Sprintf("user received %d notifications in the last 24h: consider a digest", pattern.FatigueCount))
	}
	return recs
}

// fallback runs rule filtering only. It is the terminal state for the
// invocation; later stages are not retried.
func (p *Pipeline) fallback(notifications []model.Notification, snapshot model.ContextSnapshot) model.PipelineResult {
	ruleRes := p.rules.Filter(notifications, p.buildCriteria(snapshot))
	result := model.PipelineResult{
		Notifications: ruleRes.Included,
		Stats: model.PipelineStats{
			Total:        len(notifications),
			Filtered:     len(notifications) - len(ruleRes.Included),
			MLConfidence: fallbackConfidence,
			Degraded:     true,
		},
		Explanations:    ruleRes.ExclusionReasons,
		Recommendations: []string{FallbackRecommendation},
	}
	if len(notifications) > 0 {
		result.Stats.InclusionRate = float64(len(ruleRes.Included)) / float64(len(notifications))
	}
	if result.Explanations == nil {
		result.Explanations = map[string][]string{}
	}
	return result
}

// buildCriteria derives rule criteria from context: low priority is
// allowed only during business hours or for an admin session; explicit
// per-category preference flags from history carry over.
func (p *Pipeline) buildCriteria(snapshot model.ContextSnapshot) model.FilterCriteria {
	criteria := model.FilterCriteria{
		Priorities: []model.Priority{model.PriorityCritical, model.PriorityHigh, model.PriorityMedium},
	}
	admin := snapshot.UserSession != nil && snapshot.UserSession.Role == "admin"
	businessHours := snapshot.Time != nil && snapshot.Time.IsBusinessHours
	if admin || businessHours {
		criteria.Priorities = append(criteria.Priorities, model.PriorityLow)
	}
	if snapshot.Time != nil {
		hour := snapshot.Time.Hour
		criteria.DeliveryHour = &hour
	}
	if snapshot.History != nil && len(snapshot.History.PreferencesByCategory) > 0 {
		prefs := &model.UserPreferences{Categories: make(map[model.Category]bool, len(snapshot.History.PreferencesByCategory))}
		for category, enabled := range snapshot.History.PreferencesByCategory {
			prefs.Categories[category] = enabled
		}
		criteria.Preferences = prefs
	}
	return criteria
}

// UpdateModel is the explicit online-learning hook. It is a no-op
// unless both ML filtering and adaptive filtering are enabled, and it
// is never called from Filter.
func (p *Pipeline) UpdateModel(ctx context.Context, notifications []model.Notification, snapshot model.ContextSnapshot) error {
	if !p.cfg.EnableMLFiltering || !p.cfg.EnableAdaptiveFiltering {
		return nil
	}
	trainer, ok := p.predictor.(predict.Trainer)
	if !ok {
		return nil
	}
	return trainer.Train(ctx, notifications, snapshot)
}

// ClearBehaviorCache drops one user's cached pattern, or all of them
// when userID is empty.
func (p *Pipeline) ClearBehaviorCache(userID string) {
	p.cache.clear(userID)
}

// CachedUsers reports how many behavior patterns are currently cached.
func (p *Pipeline) CachedUsers() int {
	return p.cache.len()
}

func mergeReasons(dst, src map[string][]string) {
	for id, rs := range src {
		dst[id] = append(dst[id], rs...)
	}
}

func idSet(list []model.Notification) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, n := range list {
		set[n.ID] = struct{}{}
	}
	return set
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
