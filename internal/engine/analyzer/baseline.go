package analyzer

import (
	"context"
	"fmt"
	"time"

	"NetSentinel/internal/model"
)

// BuildBaseline draws count samples, waiting interval after each draw, and
// returns the union of every connection seen together with the last sample.
// The last sample seeds the "previous" state of the main loop.
//
// A count of zero yields an empty baseline and a nil seed; callers are
// expected to reject it at configuration time.
func BuildBaseline(ctx context.Context, sampler model.Sampler, count int, interval time.Duration) (model.ConnectionSet, *model.Sample, error) {
	baseline := make(model.ConnectionSet)
	var last *model.Sample

	for i := 0; i < count; i++ {
		s, err := sampler.Sample(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("baseline sample %d/%d: %w", i+1, count, err)
		}
		baseline.Union(s.Connections)
		last = s

		if err := sleep(ctx, interval); err != nil {
			return nil, nil, err
		}
	}

	return baseline, last, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
