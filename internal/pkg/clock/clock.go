package clock

import "time"

// Clock возвращает текущее время. Нулевое значение использует time.Now в UTC.
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// Fixed возвращает часы, всегда показывающие t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}
