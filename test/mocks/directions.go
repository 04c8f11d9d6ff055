package mocks

import (
	"context"

	"github.com/richxcame/navigator/internal/directions"
	"github.com/richxcame/navigator/pkg/geo"
	"github.com/stretchr/testify/mock"
)

// MockDirectionsProvider is a mock implementation of directions.Provider
type MockDirectionsProvider struct {
	mock.Mock
}

var _ directions.Provider = (*MockDirectionsProvider)(nil)

func (m *MockDirectionsProvider) GetDirections(ctx context.Context, req directions.Request) (*directions.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directions.Response), args.Error(1)
}

func (m *MockDirectionsProvider) GetUserRoute(ctx context.Context, origin *geo.Point) (*directions.Response, error) {
	args := m.Called(ctx, origin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directions.Response), args.Error(1)
}
