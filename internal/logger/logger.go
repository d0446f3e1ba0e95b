package logger

import (
	"github.com/sirupsen/logrus"
)

// Log создаётся один раз; Init и SetTextFormatter только перенастраивают его.
var Log = newLogger()

// Init задаёт уровень структурированного логгера. Неизвестный уровень даёт info.
func Init(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)

	// JSON для production, text включается через SetTextFormatter
	l.SetFormatter(&logrus.JSONFormatter{})
	return l
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// L возвращает логгер процесса.
func L() *logrus.Logger {
	return Log
}

// WithComponent возвращает запись с полем component.
func WithComponent(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
