// Package logrus bridges querysync logging onto a logrus.Entry.
package logrus

import (
	"github.com/sirupsen/logrus"

	qs "github.com/unkn0wn-root/querysync"
)

var _ qs.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f qs.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f qs.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f qs.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f qs.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
