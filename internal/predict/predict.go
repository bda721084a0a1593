package predict

import (
	"context"

	"notigate/internal/model"
)

// RelevancePredictor scores a notification against context. Absence of
// a real model is a configuration choice: callers wire Noop (or nothing)
// instead of carrying dead stubs.
type RelevancePredictor interface {
	Predict(ctx context.Context, n model.Notification, snapshot model.ContextSnapshot) (float64, error)
}

// Trainer is the optional online-learning extension. Predictors that do
// not learn simply don't implement it.
type Trainer interface {
	Train(ctx context.Context, notifications []model.Notification, snapshot model.ContextSnapshot) error
}

// Noop passes everything through at full relevance.
type Noop struct{}

func (Noop) Predict(context.Context, model.Notification, model.ContextSnapshot) (float64, error) {
	return 1.0, nil
}

// Fixed returns a constant score; useful for tests and canaries.
type Fixed struct {
	Score float64
	Err   error
}

func (f Fixed) Predict(context.Context, model.Notification, model.ContextSnapshot) (float64, error) {
	return f.Score, f.Err
}
