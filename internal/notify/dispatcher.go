package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/goroutine"
	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// ErrQueueFull - очередь переполнена, событие отброшено.
var ErrQueueFull = errors.New("notify: очередь переполнена")

// ErrStopped - диспетчер уже остановлен.
var ErrStopped = errors.New("notify: диспетчер остановлен")

// Deliverer доставляет событие одному получателю (например, WebSocket хаб).
type Deliverer interface {
	Deliver(ctx context.Context, userID uuid.UUID, event string, data map[string]any) error
}

type job struct {
	notification *gateway.Notification
	audit        *gateway.AuditEvent
}

// Dispatcher принимает уведомления и события аудита без блокировки вызывающего
// и обрабатывает их пулом воркеров.
type Dispatcher struct {
	deliverer Deliverer
	audit     gateway.AuditSink
	queue     chan job
	workers   int
	timeout   time.Duration
	log       *logrus.Entry

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

type Option func(*Dispatcher)

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func NewDispatcher(deliverer Deliverer, audit gateway.AuditSink, buffer int, opts ...Option) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		deliverer: deliverer,
		audit:     audit,
		queue:     make(chan job, buffer),
		workers:   4,
		timeout:   5 * time.Second,
		log:       logger.WithComponent("notify"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start запускает воркеры. Остановка - через Stop.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		goroutine.SafeGo(func() {
			defer d.wg.Done()
			for j := range d.queue {
				d.handle(j)
			}
		})
	}
}

// Stop прекращает приём и ждёт, пока воркеры разберут очередь, но не дольше ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Notify(_ context.Context, n gateway.Notification) error {
	return d.enqueue(job{notification: &n})
}

func (d *Dispatcher) LogEvent(_ context.Context, e gateway.AuditEvent) error {
	if d.audit == nil {
		return nil
	}
	return d.enqueue(job{audit: &e})
}

func (d *Dispatcher) enqueue(j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) handle(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if j.audit != nil {
		if err := d.audit.LogEvent(ctx, *j.audit); err != nil {
			d.log.WithFields(logrus.Fields{
				"entity_id": j.audit.EntityID,
				"action":    j.audit.Action,
			}).WithError(err).Warn("событие аудита не записано")
		}
		return
	}

	n := j.notification
	if d.deliverer == nil {
		return
	}
	for _, userID := range n.Recipients {
		if err := d.deliverer.Deliver(ctx, userID, n.Event, n.Payload); err != nil {
			d.log.WithFields(logrus.Fields{
				"project_id": n.ProjectID,
				"user_id":    userID,
				"event":      n.Event,
			}).WithError(err).Warn("уведомление не доставлено")
		}
	}
}
