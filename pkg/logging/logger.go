package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// InitLogger sets up Log: text with timestamps at debug level, JSON otherwise.
func InitLogger(debug bool) *logrus.Logger {
	Log = NewLogger(os.Stdout, debug)
	return Log
}

// NewLogger builds a logger writing to out.
func NewLogger(out io.Writer, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.Out = out

	if debug {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}
