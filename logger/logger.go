package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLevel is read when no explicit level is configured.
const EnvLevel = "LOG_LEVEL"

// ParseLevel maps DEBUG/INFO/WARN/ERROR to a zap level.
// An empty string yields ERROR, the production default.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "INFO":
		return zapcore.InfoLevel, nil
	case "WARN":
		return zapcore.WarnLevel, nil
	case "ERROR", "":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.ErrorLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// New builds a console logger. If level is empty, LOG_LEVEL is consulted.
func New(level string) (*zap.Logger, error) {
	if level == "" {
		level = os.Getenv(EnvLevel)
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.Sampling = nil
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("fail to build logger: %w", err)
	}
	return l, nil
}

// Dialog prints a shortened user/assistant exchange at debug level.
func Dialog(l *zap.Logger, userText string, answerText string) {
	if !l.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.Debug("dialog",
		zap.String("user", tail(userText, 100)),
		zap.String("ai", head(answerText, 100)),
	)
}

func tail(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return "..." + string(runes[len(runes)-n:])
}

func head(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
