package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func parseLogLevel(level string) (logrus.Level, error) {
	switch level {
	case "error", "warn", "info", "debug":
		return logrus.ParseLevel(level)
	}
	return logrus.InfoLevel, fmt.Errorf("unknown log_level %q", level)
}

func newLogger(level, format string) (*logrus.Logger, error) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
