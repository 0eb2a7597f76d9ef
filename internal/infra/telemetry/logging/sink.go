package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"obskit/internal/domain"
	"obskit/internal/infra/telemetry"
)

func structuredEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.LevelKey = "level"
	cfg.NameKey = zapcore.OmitKey
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}

func humanEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.NameKey = zapcore.OmitKey
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// newSink builds the zap logger that echoes entries to the console and the log
// file. Write failures go to io.Discard so a broken sink never surfaces.
func newSink(cfg domain.LoggerConfig, level zap.AtomicLevel, console zapcore.WriteSyncer) (*zap.Logger, *lazyFile) {
	var cores []zapcore.Core
	if cfg.EnableConsole {
		if console == nil {
			console = zapcore.Lock(os.Stderr)
		}
		var encoder zapcore.Encoder
		if cfg.EnableStructured {
			encoder = zapcore.NewJSONEncoder(structuredEncoderConfig())
		} else {
			encoder = zapcore.NewConsoleEncoder(humanEncoderConfig())
		}
		cores = append(cores, zapcore.NewCore(encoder, console, level))
	}
	var file *lazyFile
	if cfg.EnableFile && cfg.FilePath != "" {
		file = &lazyFile{path: cfg.FilePath}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(structuredEncoderConfig()), file, level)
		cores = append(cores, core.With([]zap.Field{telemetry.LogSourceField(telemetry.LogSourceKernel)}))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...), zap.ErrorOutput(zapcore.AddSync(io.Discard))), file
}

func entryFields(entry domain.LogEntry) []zap.Field {
	fields := make([]zap.Field, 0, 7)
	fields = append(fields,
		telemetry.CorrelationIDField(entry.CorrelationID),
		telemetry.OperationField(entry.Operation),
		telemetry.PhaseField(entry.Phase),
		zap.Any(telemetry.FieldContext, entry.Context.Map()),
	)
	if entry.TraceID != "" {
		fields = append(fields, telemetry.TraceIDField(entry.TraceID))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Any(telemetry.FieldError, entry.Error))
	}
	if len(entry.Metadata) > 0 {
		fields = append(fields, zap.Any(telemetry.FieldMetadata, entry.Metadata))
	}
	return fields
}

func zapLevel(level domain.LogLevel) zapcore.Level {
	switch level {
	case domain.LogLevelDebug:
		return zapcore.DebugLevel
	case domain.LogLevelWarn:
		return zapcore.WarnLevel
	case domain.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// lazyFile is an append-only writer that creates the file and its directory
// on first write. A failed open is retried on the next write.
type lazyFile struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func (f *lazyFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return 0, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return 0, fmt.Errorf("open log file: %w", err)
		}
		f.file = file
	}
	return f.file.Write(p)
}

func (f *lazyFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	return f.file.Sync()
}

func (f *lazyFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

var _ zapcore.WriteSyncer = (*lazyFile)(nil)
