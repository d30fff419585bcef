package log

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

var levelNames = map[string]logrus.Level{
	"DEBUG": logrus.DebugLevel,
	"INFO":  logrus.InfoLevel,
	"WARN":  logrus.WarnLevel,
	"ERROR": logrus.ErrorLevel,
}

func init() {
	logger = logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if lvl, ok := levelNames[strings.ToUpper(os.Getenv("HELPDESK_LOG_LEVEL"))]; ok {
		logger.SetLevel(lvl)
	}
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// GetLogger returns the shared logger instance.
func GetLogger() *logrus.Logger {
	return logger
}
