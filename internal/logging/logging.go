package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the logger every supervisor and worker component logs
// through. Its level is logrus.InfoLevel unless the DEBUG environment
// variable is set to a non-empty value, per spec.md §6's "implementers
// may add a DEBUG toggle for log verbosity."
func New() *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stderr)
	l.SetLevel(levelFromEnv())
	return logrus.NewEntry(l)
}

func levelFromEnv() logrus.Level {
	if os.Getenv("DEBUG") != "" {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}
