package orchestration

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

// Dial connects to the Temporal frontend. The client is a heavyweight object
// that should be created once per process.
func Dial(address string, logger *zap.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort: address,
		Logger:   NewLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s: %w", address, err)
	}
	return c, nil
}

// Logger adapts zap to the Temporal SDK logger interface
type Logger struct {
	sugar *zap.SugaredLogger
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.sugar.Debugw(msg, keyvals...) }
func (l *Logger) Info(msg string, keyvals ...interface{})  { l.sugar.Infow(msg, keyvals...) }
func (l *Logger) Warn(msg string, keyvals ...interface{})  { l.sugar.Warnw(msg, keyvals...) }
func (l *Logger) Error(msg string, keyvals ...interface{}) { l.sugar.Errorw(msg, keyvals...) }
