package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

// New builds a logger writing to stderr. format is "console" or "json".
func New(level, format string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	zl, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Logger{Logger: zl}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Must is New for entry points that cannot continue without a logger.
func Must(level, format string) *Logger {
	l, err := New(level, format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return l
}

func (l *Logger) SSHConnectionAttempt(purpose, target string) {
	l.Info("ssh connection attempt",
		zap.String("type", "ssh_connection"),
		zap.String("purpose", purpose),
		zap.String("target", target),
	)
}

func (l *Logger) DeploymentStep(step, target string) {
	l.Info("executing deployment step",
		zap.String("type", "deployment"),
		zap.String("step", step),
		zap.String("target", target),
	)
}

func (l *Logger) DeploymentError(step string, err error) {
	l.Error("deployment step failed",
		zap.String("type", "deployment"),
		zap.String("step", step),
		zap.Error(err),
	)
}

func (l *Logger) DeploymentWarning(step string, err error) {
	l.Warn("deployment step degraded",
		zap.String("type", "deployment"),
		zap.String("step", step),
		zap.Error(err),
	)
}

func (l *Logger) DeploymentSuccess(step string) {
	l.Info("deployment step succeeded",
		zap.String("type", "deployment"),
		zap.String("step", step),
	)
}

func (l *Logger) DiagnosticCheck(check string, ok bool) {
	l.Debug("diagnostic check finished",
		zap.String("type", "diagnose"),
		zap.String("check", check),
		zap.Bool("ok", ok),
	)
}
