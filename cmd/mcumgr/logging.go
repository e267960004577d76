package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging configures the global logrus logger. Logs go to stderr unless
// a file is configured, in which case lumberjack rotates it.
func setupLogging(c LogConfig) error {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if c.File == "" {
		logrus.SetOutput(os.Stderr)
		return nil
	}

	logrus.SetOutput(&lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    max(c.MaxSizeMB, 1),
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	})
	return nil
}
