package sinks

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"glade-runner/server/logging"
)

// Logrus forwards events to a logrus logger, one entry per event with the
// event envelope as fields.
type Logrus struct {
	logger *logrus.Logger
}

// NewLogrus builds a logger writing to w. format "json" selects the JSON
// formatter; anything else uses the text formatter with full timestamps.
func NewLogrus(w io.Writer, format string, minimum logging.Severity) *Logrus {
	if w == nil {
		w = os.Stdout
	}
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(levelFor(minimum))
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return &Logrus{logger: logger}
}

// WrapLogrus adapts an existing logger.
func WrapLogrus(logger *logrus.Logger) *Logrus {
	if logger == nil {
		logger = logrus.New()
	}
	return &Logrus{logger: logger}
}

func (s *Logrus) Write(event logging.Event) error {
	fields := logrus.Fields{
		"tick":  event.Tick,
		"actor": formatEntity(event.Actor),
	}
	if event.Category != "" {
		fields["category"] = event.Category
	}
	if len(event.Targets) > 0 {
		fields["targets"] = formatTargets(event.Targets)[len(" targets="):]
	}
	if event.Payload != nil {
		fields["payload"] = event.Payload
	}
	for k, v := range event.Extra {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}
	entry := s.logger.WithFields(fields)
	if !event.Time.IsZero() {
		entry = entry.WithTime(event.Time)
	}
	entry.Log(levelFor(event.Severity), string(event.Type))
	return nil
}

func (s *Logrus) Close(context.Context) error {
	return nil
}

// Logger exposes the underlying logger so operational messages share it.
func (s *Logrus) Logger() *logrus.Logger {
	return s.logger
}

func levelFor(sev logging.Severity) logrus.Level {
	switch sev {
	case logging.SeverityDebug:
		return logrus.DebugLevel
	case logging.SeverityWarn:
		return logrus.WarnLevel
	case logging.SeverityError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
