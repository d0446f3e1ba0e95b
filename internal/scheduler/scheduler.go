package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// Job - периодическая фоновая задача.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Manager запускает фоновые задачи; одна задача никогда не выполняется параллельно сама с собой.
type Manager struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	timeout   time.Duration
	log       *logrus.Entry
}

func NewManager(jobTimeout time.Duration) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: не удалось создать планировщик: %w", err)
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
		timeout:   jobTimeout,
		log:       logger.WithComponent("scheduler"),
	}, nil
}

// Register добавляет задачу. Задача с нулевым интервалом отключена.
func (m *Manager) Register(job Job) error {
	if job.Interval <= 0 {
		m.log.WithField("job", job.Name).Info("задача отключена")
		return nil
	}
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(job.Interval),
		gocron.NewTask(m.run, job),
		gocron.WithName(job.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: не удалось зарегистрировать задачу %s: %w", job.Name, err)
	}
	return nil
}

func (m *Manager) run(job Job) {
	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()

	started := time.Now()
	entry := m.log.WithField("job", job.Name)
	defer func() {
		if r := recover(); r != nil {
			entry.Errorf("panic в задаче: %v", r)
		}
	}()

	if err := job.Run(ctx); err != nil {
		entry.WithError(err).Warn("задача завершилась с ошибкой")
		return
	}
	entry.WithField("duration", time.Since(started).String()).Debug("задача выполнена")
}

func (m *Manager) Start() {
	m.scheduler.Start()
	m.log.Info("планировщик запущен")
}

// Stop отменяет выполняющиеся задачи и останавливает планировщик.
func (m *Manager) Stop() {
	m.cancel()
	if err := m.scheduler.Shutdown(); err != nil {
		m.log.WithError(err).Warn("не удалось остановить планировщик")
		return
	}
	m.log.Info("планировщик остановлен")
}
