package app

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context holds application-wide configuration and state
type Context struct {
	context.Context

	// Output preferences
	OutputFormat string
	Verbose      bool
	Quiet        bool

	// Terminal wiring; tests substitute buffers
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer

	// Logger is the structured diagnostic logger
	Logger *zap.Logger

	// ProgressCallback receives coarse completion updates, at most one per
	// whole percent
	ProgressCallback func(message string, percent int)
}

// NewContext creates a new application context writing to the process
// standard streams.
func NewContext() *Context {
	return &Context{
		Context: context.Background(),
		In:      os.Stdin,
		Out:     os.Stdout,
		ErrOut:  os.Stderr,
		Logger:  zap.NewNop(),
	}
}

// NewLogger builds the console logger for the given verbosity. Verbose
// enables debug output, quiet restricts output to errors.
func NewLogger(verbose, quiet bool) *zap.Logger {
	return newLogger(os.Stderr, verbose, quiet)
}

func newLogger(w io.Writer, verbose, quiet bool) *zap.Logger {
	level := zapcore.InfoLevel
	switch {
	case quiet:
		level = zapcore.ErrorLevel
	case verbose:
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}

// WithContext returns a copy bound to ctx
func (c *Context) WithContext(ctx context.Context) *Context {
	newCtx := *c
	newCtx.Context = ctx
	return &newCtx
}

// SetProgress sets the progress callback function
func (c *Context) SetProgress(callback func(string, int)) {
	c.ProgressCallback = callback
}

// Progress reports progress if callback is set
func (c *Context) Progress(message string, percent int) {
	if c.ProgressCallback != nil {
		c.ProgressCallback(message, percent)
	}
}

// Log outputs a debug message
func (c *Context) Log(message string, fields ...zap.Field) {
	c.logger().Debug(message, fields...)
}

// Warn outputs a warning unless quiet
func (c *Context) Warn(message string, fields ...zap.Field) {
	c.logger().Warn(message, fields...)
}

// Error outputs an error message
func (c *Context) Error(message string, fields ...zap.Field) {
	c.logger().Error(message, fields...)
}

func (c *Context) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
