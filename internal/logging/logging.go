package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LoggerName tags every entry, as the transcoder log readers expect.
	LoggerName = "Transcoder"

	// SeverityNormal marks a confirmed-healthy stream. zap has no level
	// between info and warn, so NORMAL entries are info entries carrying it.
	SeverityNormal = "NORMAL"
)

// Options configures the watchdog logger.
type Options struct {
	Dir     string
	Level   string
	Console bool
	Now     func() time.Time
}

// FileName returns the dated log file name for t.
func FileName(t time.Time) string {
	return t.Format("2006-01-02") + "_udpwatch.log"
}

// New builds a logger writing to <Dir>/<date>_udpwatch.log and, when
// Console is set, to stderr. The returned func flushes and closes the file.
func New(opts Options) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", opts.Level, err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var cores []zapcore.Core
	var file *os.File
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		path := filepath.Join(opts.Dir, FileName(now()))
		file, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, newSinkCore(zapcore.AddSync(file), level))
	}
	if opts.Console || len(cores) == 0 {
		cores = append(cores, newSinkCore(zapcore.Lock(os.Stderr), level))
	}

	logger := zap.New(zapcore.NewTee(cores...)).Named(LoggerName)
	cleanup := func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return logger, cleanup, nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " - "
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	return cfg
}

// Normal records a successful liveness confirmation. Sinks built by New
// print NORMAL in the level column for it.
func Normal(logger *zap.Logger, msg string, fields ...zap.Field) {
	logger.Info(msg, append([]zap.Field{zap.String(severityKey, SeverityNormal)}, fields...)...)
}

const severityKey = "severity"

func newSinkCore(ws zapcore.WriteSyncer, level zapcore.LevelEnabler) zapcore.Core {
	normalCfg := encoderConfig()
	normalCfg.EncodeLevel = func(_ zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(SeverityNormal)
	}
	return &normalCore{
		Core:   zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), ws, level),
		normal: zapcore.NewCore(zapcore.NewConsoleEncoder(normalCfg), ws, level),
	}
}

// normalCore routes entries carrying severity=NORMAL to a twin core whose
// level column reads NORMAL. The marker field itself is not printed.
type normalCore struct {
	zapcore.Core
	normal zapcore.Core
}

func (c *normalCore) With(fields []zapcore.Field) zapcore.Core {
	return &normalCore{Core: c.Core.With(fields), normal: c.normal.With(fields)}
}

func (c *normalCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *normalCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	for i, f := range fields {
		if f.Key == severityKey && f.Type == zapcore.StringType && f.String == SeverityNormal {
			rest := make([]zapcore.Field, 0, len(fields)-1)
			rest = append(rest, fields[:i]...)
			rest = append(rest, fields[i+1:]...)
			return c.normal.Write(ent, rest)
		}
	}
	return c.Core.Write(ent, fields)
}
