package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ObservabilityLogger provides structured logging using logrus.
// Every entry carries a component and a category label.
type ObservabilityLogger struct {
	logger *logrus.Logger
	base   *logrus.Entry
	file   *lumberjack.Logger
}

// Component constants for consistent labeling
const (
	ComponentCLI    = "cli"
	ComponentParser = "parser"
	ComponentBatch  = "batch"
	ComponentStore  = "store"
	ComponentServer = "server"
	ComponentConfig = "configuration"
)

// Category constants for log classification
const (
	CategoryRequest    = "request"
	CategoryParse      = "parse"
	CategorySuccess    = "success"
	CategoryWarning    = "warning"
	CategoryError      = "error"
	CategoryValidation = "validation"
	CategoryDebug      = "debug"
	CategoryLifecycle  = "lifecycle"
)

// Options controls logger construction
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	File   string // optional rotated log file, written in addition to Output
	Output io.Writer
	// Fields are attached to every entry
	Fields map[string]interface{}
}

// New creates a new structured logger
func New(opts Options) *ObservabilityLogger {
	logger := logrus.New()
	logger.SetLevel(ParseLevel(opts.Level))

	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var file *lumberjack.Logger
	if path := strings.TrimSpace(opts.File); path != "" {
		file = &lumberjack.Logger{Filename: path, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		out = io.MultiWriter(out, file)
	}
	logger.SetOutput(out)

	fields := logrus.Fields{"service": "royal"}
	for k, v := range opts.Fields {
		fields[k] = v
	}

	return &ObservabilityLogger{
		logger: logger,
		base:   logger.WithFields(fields),
		file:   file,
	}
}

// Discard returns a logger that drops everything, for tests and library defaults
func Discard() *ObservabilityLogger {
	return New(Options{Level: "error", Output: io.Discard})
}

// ParseLevel converts a level name to a logrus level, defaulting to info
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Close closes the rotated log file, if any
func (o *ObservabilityLogger) Close() error {
	if o.file != nil {
		return o.file.Close()
	}
	return nil
}

// Logrus exposes the underlying logger
func (o *ObservabilityLogger) Logrus() *logrus.Logger {
	return o.logger
}

// Component returns an entry pre-labeled with the component, suitable for
// handing to packages that accept a logrus.FieldLogger
func (o *ObservabilityLogger) Component(component string) *logrus.Entry {
	return o.base.WithField("component", component)
}

// With returns a logger whose entries all carry the given field
func (o *ObservabilityLogger) With(key string, value interface{}) *ObservabilityLogger {
	return &ObservabilityLogger{
		logger: o.logger,
		base:   o.base.WithField(key, value),
		file:   o.file,
	}
}

// createEntry creates a logrus entry with standard fields
func (o *ObservabilityLogger) createEntry(component, category string, fields map[string]interface{}) *logrus.Entry {
	entry := o.base.WithFields(logrus.Fields{
		"component": component,
		"category":  category,
	})

	if fields != nil {
		entry = entry.WithFields(fields)
	}

	return entry
}

// Debug logs a debug message
func (o *ObservabilityLogger) Debug(component, category, message string, fields map[string]interface{}) {
	o.createEntry(component, category, fields).Debug(message)
}

// Info logs an info message
func (o *ObservabilityLogger) Info(component, category, message string, fields map[string]interface{}) {
	o.createEntry(component, category, fields).Info(message)
}

// Warn logs a warning message
func (o *ObservabilityLogger) Warn(component, category, message string, fields map[string]interface{}) {
	o.createEntry(component, category, fields).Warn(message)
}

// Error logs an error message
func (o *ObservabilityLogger) Error(component, category, message string, fields map[string]interface{}) {
	o.createEntry(component, category, fields).Error(message)
}

// ParseFailure logs a rejected message record
func (o *ObservabilityLogger) ParseFailure(source string, record int, reason string, err error) {
	o.Warn(ComponentBatch, CategoryParse, "Failed to parse message", map[string]interface{}{
		"source": source,
		"record": record,
		"reason": reason,
		"error":  err.Error(),
	})
}

// Request logs an HTTP request
func (o *ObservabilityLogger) Request(requestID, method, path string, status int, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["request_id"] = requestID
	fields["method"] = method
	fields["path"] = path
	fields["status"] = status
	o.Info(ComponentServer, CategoryRequest, "Request handled", fields)
}
