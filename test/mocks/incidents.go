package mocks

import (
	"context"

	"github.com/richxcame/navigator/internal/incidents"
	"github.com/stretchr/testify/mock"
)

// MockIncidentService is a mock implementation of incidents.Service
type MockIncidentService struct {
	mock.Mock
}

var _ incidents.Service = (*MockIncidentService)(nil)

func (m *MockIncidentService) List(ctx context.Context) ([]incidents.Hazard, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]incidents.Hazard), args.Error(1)
}

func (m *MockIncidentService) Create(ctx context.Context, req incidents.CreateRequest) (*incidents.Hazard, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*incidents.Hazard), args.Error(1)
}

func (m *MockIncidentService) Rate(ctx context.Context, id int64, positive bool) error {
	args := m.Called(ctx, id, positive)
	return args.Error(0)
}
