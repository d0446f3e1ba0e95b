package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
)

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, userID uuid.UUID, event string, data map[string]any) error {
	args := m.Called(ctx, userID, event, data)
	return args.Error(0)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []gateway.AuditEvent
}

func (r *recordingAudit) LogEvent(_ context.Context, e gateway.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func TestDispatcherDeliversToEveryRecipient(t *testing.T) {
	client, freelancer := uuid.New(), uuid.New()
	payload := map[string]any{"projectId": "p"}

	deliverer := new(mockDeliverer)
	deliverer.On("Deliver", mock.Anything, client, "project.funded", payload).Return(nil).Once()
	deliverer.On("Deliver", mock.Anything, freelancer, "project.funded", payload).Return(errors.New("offline")).Once()

	audit := &recordingAudit{}
	d := NewDispatcher(deliverer, audit, 8, WithWorkers(2))
	d.Start()

	require.NoError(t, d.Notify(context.Background(), gateway.Notification{
		ProjectID:  uuid.New(),
		Event:      "project.funded",
		Recipients: []uuid.UUID{client, freelancer},
		Payload:    payload,
	}))
	require.NoError(t, d.LogEvent(context.Background(), gateway.AuditEvent{Action: "project.funded", EntityID: uuid.New()}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	deliverer.AssertExpectations(t)
	assert.Len(t, audit.events, 1)
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(nil, nil, 1)

	require.NoError(t, d.Notify(context.Background(), gateway.Notification{Event: "a"}))
	assert.ErrorIs(t, d.Notify(context.Background(), gateway.Notification{Event: "b"}), ErrQueueFull)

	// без аудит-синка события аудита молча игнорируются
	assert.NoError(t, d.LogEvent(context.Background(), gateway.AuditEvent{}))
}

func TestDispatcherStopped(t *testing.T) {
	d := NewDispatcher(nil, nil, 4)
	d.Start()
	require.NoError(t, d.Stop(context.Background()))
	require.NoError(t, d.Stop(context.Background()))

	assert.ErrorIs(t, d.Notify(context.Background(), gateway.Notification{}), ErrStopped)
}
