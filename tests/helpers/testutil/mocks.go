package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// MockGranter is a mock of the admin endpoint's credential grant.
type MockGranter struct {
	mock.Mock
}

// AuthorizeSigningCredentials mocks the grant call.
func (m *MockGranter) AuthorizeSigningCredentials(ctx context.Context, cell types.CellID) error {
	args := m.Called(ctx, cell)
	return args.Error(0)
}

// NewMockGranter creates a granter whose expectations are checked at cleanup.
func NewMockGranter(t *testing.T) *MockGranter {
	t.Helper()
	m := new(MockGranter)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockCloneCreator is a mock of the admin endpoint's clone creation.
type MockCloneCreator struct {
	mock.Mock
}

// CreateCloneCell mocks clone creation. The first return value may be a
// function of the request.
func (m *MockCloneCreator) CreateCloneCell(ctx context.Context, req types.CreateCloneCellRequest) (*types.ClonedCell, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(context.Context, types.CreateCloneCellRequest) *types.ClonedCell); ok {
		return fn(ctx, req), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ClonedCell), args.Error(1)
}

// MockRegistrar is a mock of a sensemaker store's config registration.
type MockRegistrar struct {
	mock.Mock
}

// RegisterApplet mocks config registration.
func (m *MockRegistrar) RegisterApplet(ctx context.Context, cfg types.AppletConfigInput) (*types.AppletConfig, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.AppletConfig), args.Error(1)
}

// CellWith matches a cell id argument by value.
func CellWith(id types.CellID) any {
	return mock.MatchedBy(func(c types.CellID) bool { return c.Equal(id) })
}

// MockAuthorizer is a mock of the per-cell signing authorizer.
type MockAuthorizer struct {
	mock.Mock
}

// Authorize mocks a single cell authorization.
func (m *MockAuthorizer) Authorize(ctx context.Context, cell types.CellID) error {
	args := m.Called(ctx, cell)
	return args.Error(0)
}
