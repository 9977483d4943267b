// Package logging configures the logrus logger shared by all components.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to stdout. format is "text" or "json".
func New(debug bool, format string) *logrus.Logger {
	return NewWithOutput(os.Stdout, debug, format)
}

// NewWithOutput is New with an explicit destination
func NewWithOutput(out io.Writer, debug bool, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}
