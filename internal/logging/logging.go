// Package logging builds the structured logger shared by every subsystem of
// the bridge. It mirrors the root-command console setup of the k6 CLI:
// the caller's Format picks a human-readable text formatter or
// line-delimited JSON; whether the output is a TTY does not change it.
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Field keys used consistently across subsystems so log lines stay greppable.
const (
	FieldGeneration = "generation"
	FieldTool       = "tool"
	FieldSessionID  = "session_id"
	FieldTargetID   = "target_id"
	FieldComponent  = "component"
)

// Format selects the on-disk/console representation of log lines.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// New builds a *logrus.Logger writing to w (or a colorable stdout wrapper
// when w is nil and stdout is a TTY). level must parse via logrus.ParseLevel.
func New(format Format, level string, w io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)

	if w == nil {
		if isatty.IsTerminal(os.Stdout.Fd()) {
			w = colorable.NewColorableStdout()
		} else {
			w = os.Stdout
		}
	}
	logger.SetOutput(w)

	switch format {
	case FormatJSON:
		logger.SetFormatter(&jsonFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return logger, nil
}

// jsonFormatter renders one JSON object per line. It generalizes k6's
// logstash formatter away from the logstash-specific envelope
// (@timestamp/@version/type) into a plain structured line, since this bridge
// has no logstash shipper downstream — just a log file or the agent's own
// log viewer.
type jsonFormatter struct {
	logrus.JSONFormatter
}

func (f *jsonFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	data := make(logrus.Fields, len(entry.Data)+3)
	for k, v := range entry.Data {
		data[k] = v
	}
	data["time"] = entry.Time.Format("2006-01-02T15:04:05.000Z07:00")
	data["level"] = entry.Level.String()
	data["msg"] = entry.Message

	inner := logrus.Entry{
		Logger:  entry.Logger,
		Data:    data,
		Time:    entry.Time,
		Level:   entry.Level,
		Message: entry.Message,
	}
	return f.JSONFormatter.Format(&inner)
}

// Named returns a child logger scoped to component, mirroring k6's
// per-subsystem logger fields (common.Logger carried a "category").
func Named(base *logrus.Logger, component string) *logrus.Entry {
	return base.WithField(FieldComponent, component)
}
