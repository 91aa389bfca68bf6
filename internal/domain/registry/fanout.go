package registry

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/okian/gesture/internal/domain/tensor"
)

// PredictAll runs every loaded model over img concurrently. Per-model
// failures are reported in the outcome; the call itself fails only when ctx
// is done before the fan-out finishes.
func (m *Manager) PredictAll(ctx context.Context, img tensor.Tensor) ([]Outcome, error) {
	t := m.acquire()
	defer t.mu.RUnlock()

	out := make([]Outcome, len(t.ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range t.ids {
		lm := t.models[id]
		g.Go(func() error {
			res, err := m.predict(gctx, lm, img)
			out[i] = Outcome{ModelID: id, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
