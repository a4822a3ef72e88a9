package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
)

// MockOutboxRepository simula el store del outbox.
type MockOutboxRepository struct {
	mock.Mock
}

var _ domain.OutboxRepository = (*MockOutboxRepository)(nil)

func (m *MockOutboxRepository) Enqueue(ctx context.Context, tx domain.Tx, evt *domain.DomainEvent) (bool, error) {
	args := m.Called(ctx, tx, evt)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxRepository) Claim(ctx context.Context) (*domain.DomainEvent, error) {
	args := m.Called(ctx)
	evt, _ := args.Get(0).(*domain.DomainEvent)
	return evt, args.Error(1)
}

func (m *MockOutboxRepository) Complete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) Fail(ctx context.Context, id string, opts domain.FailOptions) (domain.EventStatus, error) {
	args := m.Called(ctx, id, opts)
	return args.Get(0).(domain.EventStatus), args.Error(1)
}

func (m *MockOutboxRepository) CountByStatus(ctx context.Context, status domain.EventStatus) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

func (m *MockOutboxRepository) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

func (m *MockOutboxRepository) Get(ctx context.Context, id string) (*domain.DomainEvent, error) {
	args := m.Called(ctx, id)
	evt, _ := args.Get(0).(*domain.DomainEvent)
	return evt, args.Error(1)
}

// MockEventHandler simula el dispatcher que consume el scheduler.
type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) Dispatch(ctx context.Context, evt domain.DomainEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}
