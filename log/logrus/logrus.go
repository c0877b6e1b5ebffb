// Package logrus adapts sirupsen/logrus to the leasepool Logger interface.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/poolable/leasepool"
)

type Logger struct{ E *logrus.Entry }

var _ leasepool.Logger = Logger{}

func (l Logger) Debug(msg string, f leasepool.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}

func (l Logger) Info(msg string, f leasepool.Fields) {
	l.E.WithFields(logrus.Fields(f)).Info(msg)
}

func (l Logger) Warn(msg string, f leasepool.Fields) {
	l.E.WithFields(logrus.Fields(f)).Warn(msg)
}

func (l Logger) Error(msg string, f leasepool.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
