package log

import (
	"strings"

	"github.com/sirupsen/logrus"
	waLog "go.mau.fi/whatsmeow/util/log"
)

type waLogger struct {
	entry *logrus.Entry
	level logrus.Level
}

// WhatsApp adapts the process logger to whatsmeow's logger interface.
// minLevel uses whatsmeow names (DEBUG, INFO, WARN, ERROR).
func WhatsApp(module string, minLevel string) waLog.Logger {
	return &waLogger{
		entry: logger.WithField("module", module),
		level: parseWALevel(minLevel),
	}
}

func parseWALevel(raw string) logrus.Level {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBUG":
		return logrus.DebugLevel
	case "INFO":
		return logrus.InfoLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}

func (l *waLogger) logf(level logrus.Level, msg string, args ...interface{}) {
	if level > l.level {
		return
	}
	l.entry.Logf(level, msg, args...)
}

func (l *waLogger) Errorf(msg string, args ...interface{}) { l.logf(logrus.ErrorLevel, msg, args...) }
func (l *waLogger) Warnf(msg string, args ...interface{})  { l.logf(logrus.WarnLevel, msg, args...) }
func (l *waLogger) Infof(msg string, args ...interface{})  { l.logf(logrus.InfoLevel, msg, args...) }
func (l *waLogger) Debugf(msg string, args ...interface{}) { l.logf(logrus.DebugLevel, msg, args...) }

func (l *waLogger) Sub(module string) waLog.Logger {
	parent, _ := l.entry.Data["module"].(string)
	if parent != "" {
		module = parent + "/" + module
	}
	return &waLogger{
		entry: l.entry.WithField("module", module),
		level: l.level,
	}
}
