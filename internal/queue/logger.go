package queue

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger routes asynq's internal logging through slog.
type Logger struct {
	log *slog.Logger
}

func NewLogger() *Logger {
	return &Logger{log: slog.Default().With("component", "asynq")}
}

func (l *Logger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l *Logger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l *Logger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l *Logger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }

func (l *Logger) Fatal(args ...interface{}) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
