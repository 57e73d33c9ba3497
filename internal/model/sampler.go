package model

import "context"

// Sampler produces snapshots of the host's network state.
type Sampler interface {
	Sample(ctx context.Context) (*Sample, error)
}
