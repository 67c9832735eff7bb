package registry

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/areal/internal/boundary"
	"github.com/sells-group/areal/internal/stats"
)

// mockLoader implements Loader for testing.
type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) LoadBoundaries(ctx context.Context, spec Spec) (*boundary.Store, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*boundary.Store), args.Error(1)
}

func (m *mockLoader) LoadStatistics(ctx context.Context, spec Spec) (*stats.Table, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stats.Table), args.Error(1)
}
