// Package mocks provides testify mocks for orchestration engine interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/errandlabs/errand/pkg/gateway"
)

// MockGateway is a mock implementation of gateway.Gateway interface.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Send(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	args := m.Called(ctx, req)

	if resp := args.Get(0); resp != nil {
		return resp.(*gateway.Response), args.Error(1)
	}

	return nil, args.Error(1)
}
