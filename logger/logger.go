// Package logger provides the structured logging used across the signing walkthrough.
// Entries fan out to any number of output handlers: a console handler with text or JSON
// formatting and a handler that forwards entries to an OpenTelemetry log pipeline.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DebugLevel, nil
	case "INFO", "":
		return InfoLevel, nil
	case "WARN", "WARNING":
		return WarnLevel, nil
	case "ERROR":
		return ErrorLevel, nil
	case "FATAL":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// Field represents a key-value pair in a structured log entry.
type Field struct {
	Key   string
	Value interface{}
}

// Entry represents a log entry with metadata.
type Entry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
	Service   string                 `json:"service"`
	TraceID   string                 `json:"trace_id,omitempty"`
	SpanID    string                 `json:"span_id,omitempty"`
}

// OutputHandler represents a destination for log entries.
type OutputHandler interface {
	// Handle processes a log entry
	Handle(ctx context.Context, entry Entry) error
	// Close performs any cleanup necessary
	Close() error
}

// ConsoleHandler writes formatted entries to a stream, normally stderr.
type ConsoleHandler struct {
	out       io.Writer
	formatter Formatter
	mu        sync.Mutex
}

// Handle writes the log entry to the stream.
func (h *ConsoleHandler) Handle(_ context.Context, entry Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	bytes, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	_, err = h.out.Write(bytes)
	return err
}

// Close implements the OutputHandler interface.
func (h *ConsoleHandler) Close() error {
	return nil
}

// NewConsoleHandler creates a handler writing to out. A nil out means os.Stderr.
func NewConsoleHandler(out io.Writer, formatter Formatter) *ConsoleHandler {
	if out == nil {
		out = os.Stderr
	}
	return &ConsoleHandler{
		out:       out,
		formatter: formatter,
	}
}

// OTelHandler forwards entries to an OpenTelemetry logger, keeping the span context of ctx.
type OTelHandler struct {
	logger otellog.Logger
}

// NewOTelHandler creates a handler that emits records through logger.
func NewOTelHandler(logger otellog.Logger) *OTelHandler {
	return &OTelHandler{logger: logger}
}

// Handle converts the entry into an OpenTelemetry log record and emits it.
func (h *OTelHandler) Handle(ctx context.Context, entry Entry) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var record otellog.Record
	record.SetTimestamp(entry.Timestamp)
	record.SetObservedTimestamp(time.Now())
	record.SetSeverity(severity(entry.Level))
	record.SetSeverityText(entry.Level)
	record.SetBody(otellog.StringValue(entry.Message))
	record.AddAttributes(
		otellog.String("log.id", entry.ID),
		otellog.String("service.name", entry.Service),
	)
	if entry.Caller != "" {
		record.AddAttributes(otellog.String("code.caller", entry.Caller))
	}
	for _, key := range sortedKeys(entry.Fields) {
		record.AddAttributes(otellog.String(key, fmt.Sprintf("%v", entry.Fields[key])))
	}

	h.logger.Emit(ctx, record)
	return nil
}

// Close implements the OutputHandler interface. The provider owns the exporter.
func (h *OTelHandler) Close() error {
	return nil
}

func severity(level string) otellog.Severity {
	switch level {
	case "DEBUG":
		return otellog.SeverityDebug
	case "INFO":
		return otellog.SeverityInfo
	case "WARN":
		return otellog.SeverityWarn
	case "ERROR":
		return otellog.SeverityError
	case "FATAL":
		return otellog.SeverityFatal
	default:
		return otellog.SeverityUndefined
	}
}

// Formatter defines the interface for formatting log entries.
type Formatter interface {
	Format(entry Entry) ([]byte, error)
}

// JsonFormatter formats log entries as JSON.
type JsonFormatter struct {
	Pretty bool
}

// Format converts the log entry to JSON.
func (f *JsonFormatter) Format(entry Entry) ([]byte, error) {
	var bytes []byte
	var err error

	if f.Pretty {
		bytes, err = json.MarshalIndent(entry, "", "  ")
	} else {
		bytes, err = json.Marshal(entry)
	}

	if err != nil {
		return nil, err
	}

	return append(bytes, '\n'), nil
}

// TextFormatter formats log entries as human-readable text.
type TextFormatter struct {
	IncludeTimestamp bool
	TimestampFormat  string
	IncludeCaller    bool
}

// Format converts the log entry to text. Fields are printed in key order.
func (f *TextFormatter) Format(entry Entry) ([]byte, error) {
	var parts []string

	if f.IncludeTimestamp {
		format := f.TimestampFormat
		if format == "" {
			format = time.RFC3339
		}
		parts = append(parts, entry.Timestamp.Format(format))
	}

	parts = append(parts, fmt.Sprintf("[%s]", entry.Level))

	if entry.Service != "" {
		parts = append(parts, fmt.Sprintf("[%s]", entry.Service))
	}

	if f.IncludeCaller && entry.Caller != "" {
		parts = append(parts, fmt.Sprintf("(%s)", entry.Caller))
	}

	parts = append(parts, entry.Message)

	if len(entry.Fields) > 0 {
		fieldsStr := make([]string, 0, len(entry.Fields))
		for _, k := range sortedKeys(entry.Fields) {
			fieldsStr = append(fieldsStr, fmt.Sprintf("%s=%v", k, entry.Fields[k]))
		}
		parts = append(parts, fmt.Sprintf("{%s}", strings.Join(fieldsStr, ", ")))
	}

	if entry.TraceID != "" {
		parts = append(parts, fmt.Sprintf("trace=%s", entry.TraceID))
	}

	return []byte(strings.Join(parts, " ") + "\n"), nil
}

func sortedKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Logger represents the main logger instance.
type Logger struct {
	handlers    []OutputHandler
	level       Level
	serviceName string
	mu          sync.RWMutex
	callDepth   int
	exit        func(int)
}

// LoggerOption defines a functional option for configuring Logger.
type LoggerOption func(*Logger)

// WithHandler adds an OutputHandler to the logger.
func WithHandler(handler OutputHandler) LoggerOption {
	return func(l *Logger) {
		l.handlers = append(l.handlers, handler)
	}
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *Logger) {
		l.level = level
	}
}

// WithService sets the service name.
func WithService(name string) LoggerOption {
	return func(l *Logger) {
		l.serviceName = name
	}
}

// WithCallDepth sets the call depth for caller information.
func WithCallDepth(depth int) LoggerOption {
	return func(l *Logger) {
		l.callDepth = depth
	}
}

// WithExitFunc replaces os.Exit for fatal entries.
func WithExitFunc(exit func(int)) LoggerOption {
	return func(l *Logger) {
		l.exit = exit
	}
}

// NewLogger creates a new logger with the given options.
func NewLogger(options ...LoggerOption) *Logger {
	logger := &Logger{
		handlers:    make([]OutputHandler, 0),
		level:       InfoLevel,
		serviceName: "unknown",
		callDepth:   3,
		exit:        os.Exit,
	}

	for _, option := range options {
		option(logger)
	}

	return logger
}

func (l *Logger) shouldLog(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

// getCaller returns the file name and line number of the caller.
func (l *Logger) getCaller() string {
	_, file, line, ok := runtime.Caller(l.callDepth)
	if !ok {
		return "unknown:0"
	}

	short := file
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		short = file[i+1:]
	}

	return fmt.Sprintf("%s:%d", short, line)
}

// getTraceInfo extracts trace and span IDs from the OpenTelemetry span in ctx.
func getTraceInfo(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}

	return sc.TraceID().String(), sc.SpanID().String()
}

// With creates a new EntryBuilder with the given fields.
func (l *Logger) With(fields ...Field) *EntryBuilder {
	fieldsMap := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		fieldsMap[field.Key] = field.Value
	}

	return &EntryBuilder{
		logger: l,
		fields: fieldsMap,
	}
}

// log logs an entry with the given level and message.
func (l *Logger) log(ctx context.Context, level Level, message string, fields ...Field) {
	if !l.shouldLog(level) {
		return
	}

	fieldsMap := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		fieldsMap[field.Key] = field.Value
	}

	traceID, spanID := getTraceInfo(ctx)

	entry := Entry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   message,
		Fields:    fieldsMap,
		Service:   l.serviceName,
		Caller:    l.getCaller(),
		TraceID:   traceID,
		SpanID:    spanID,
	}

	l.mu.RLock()
	handlers := l.handlers
	l.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler.Handle(ctx, entry); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to log entry: %v\n", err)
		}
	}

	if level == FatalLevel {
		l.exit(1)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(ctx context.Context, message string, fields ...Field) {
	l.log(ctx, DebugLevel, message, fields...)
}

// Info logs an info message.
func (l *Logger) Info(ctx context.Context, message string, fields ...Field) {
	l.log(ctx, InfoLevel, message, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(ctx context.Context, message string, fields ...Field) {
	l.log(ctx, WarnLevel, message, fields...)
}

// Error logs an error message.
func (l *Logger) Error(ctx context.Context, message string, fields ...Field) {
	l.log(ctx, ErrorLevel, message, fields...)
}

// Fatal logs a fatal message and exits the application.
func (l *Logger) Fatal(ctx context.Context, message string, fields ...Field) {
	l.log(ctx, FatalLevel, message, fields...)
}

// Close closes all handlers.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []string

	for _, handler := range l.handlers {
		if err := handler.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing handlers: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AddHandler adds a handler to the logger.
func (l *Logger) AddHandler(handler OutputHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.handlers = append(l.handlers, handler)
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.level = level
}

// EntryBuilder helps build entries with additional context.
type EntryBuilder struct {
	logger *Logger
	fields map[string]interface{}
	ctx    context.Context
}

// Context adds a context to the entry builder.
func (b *EntryBuilder) Context(ctx context.Context) *EntryBuilder {
	b.ctx = ctx
	return b
}

// Debug logs a debug message with the accumulated fields.
func (b *EntryBuilder) Debug(message string) {
	b.logger.log(b.ctx, DebugLevel, message, b.fieldsToSlice()...)
}

// Info logs an info message with the accumulated fields.
func (b *EntryBuilder) Info(message string) {
	b.logger.log(b.ctx, InfoLevel, message, b.fieldsToSlice()...)
}

// Warn logs a warning message with the accumulated fields.
func (b *EntryBuilder) Warn(message string) {
	b.logger.log(b.ctx, WarnLevel, message, b.fieldsToSlice()...)
}

// Error logs an error message with the accumulated fields.
func (b *EntryBuilder) Error(message string) {
	b.logger.log(b.ctx, ErrorLevel, message, b.fieldsToSlice()...)
}

// Fatal logs a fatal message with the accumulated fields and exits.
func (b *EntryBuilder) Fatal(message string) {
	b.logger.log(b.ctx, FatalLevel, message, b.fieldsToSlice()...)
}

func (b *EntryBuilder) fieldsToSlice() []Field {
	fields := make([]Field, 0, len(b.fields))
	for k, v := range b.fields {
		fields = append(fields, Field{Key: k, Value: v})
	}
	return fields
}

// WithField adds a field to the entry builder.
func (b *EntryBuilder) WithField(key string, value interface{}) *EntryBuilder {
	b.fields[key] = value
	return b
}

// WithError adds an error as a field.
func (b *EntryBuilder) WithError(err error) *EntryBuilder {
	if err != nil {
		b.fields["error"] = err.Error()
	}
	return b
}

// F is a shorthand for creating a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// DefaultLogger creates a basic logger that writes text to stderr.
func DefaultLogger(serviceName string) *Logger {
	formatter := &TextFormatter{
		IncludeTimestamp: true,
		IncludeCaller:    true,
	}

	return NewLogger(
		WithService(serviceName),
		WithHandler(NewConsoleHandler(os.Stderr, formatter)),
		WithLevel(InfoLevel),
	)
}
