package dispute

import "time"

// Policy - параметры процесса разрешения споров.
type Policy struct {
	// ReviewThreshold - уверенность анализа (0..100), выше которой спор уходит на самостоятельное урегулирование.
	ReviewThreshold float64
	// EscalationAfter отсчитывается от назначения медиатора.
	EscalationAfter time.Duration
	// MessageThreshold - эскалация возможна, когда сообщений строго больше порога.
	MessageThreshold int
	AppealWindow     time.Duration
	// RedisputeCooldown - пауза перед повторным спором той же стороны по тому же этапу.
	RedisputeCooldown time.Duration
	ClaimTimeout      time.Duration
	OracleTimeout     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		ReviewThreshold:   80,
		EscalationAfter:   24 * time.Hour,
		MessageThreshold:  10,
		AppealWindow:      7 * 24 * time.Hour,
		RedisputeCooldown: 24 * time.Hour,
		ClaimTimeout:      15 * time.Minute,
		OracleTimeout:     30 * time.Second,
	}
}
