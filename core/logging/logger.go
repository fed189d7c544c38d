package logging

import (
	"fmt"

	"github.com/yob/home-energy/pubsub"
)

const (
	DebugLevel = "DEBUG"
	InfoLevel  = "INFO"
	WarnLevel  = "WARN"
	ErrorLevel = "ERROR"
	FatalLevel = "FATAL"
)

type Logger struct {
	bus *pubsub.Pubsub
}

func NewLogger(bus *pubsub.Pubsub) *Logger {
	return &Logger{
		bus: bus,
	}
}

func (logger *Logger) Debug(message string) {
	logger.publish(DebugLevel, message)
}

func (logger *Logger) Info(message string) {
	logger.publish(InfoLevel, message)
}

func (logger *Logger) Warn(message string) {
	logger.publish(WarnLevel, message)
}

func (logger *Logger) Error(message string) {
	logger.publish(ErrorLevel, message)
}

// Fatal reports an error that stops the calling adapter. The process keeps
// running.
func (logger *Logger) Fatal(message string) {
	logger.publish(FatalLevel, message)
}

func (logger *Logger) Debugf(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

func (logger *Logger) Infof(format string, args ...interface{}) {
	logger.Info(fmt.Sprintf(format, args...))
}

func (logger *Logger) Warnf(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...))
}

func (logger *Logger) Errorf(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...))
}

func (logger *Logger) publish(level string, message string) {
	logger.bus.PublishChannel() <- pubsub.PubsubEvent{
		Topic: "log:new",
		Data:  pubsub.NewKeyValueEvent(level, message),
	}
}
