package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yob/home-energy/pubsub"
)

// Init renders every log:new event until the subscription closes.
func Init(bus *pubsub.Pubsub, level string) {
	subLog, _ := bus.Subscribe("log:new")
	defer subLog.Close()

	sugar := newZapLogger(level)
	defer sugar.Sync()

	for event := range subLog.Ch {
		write(sugar, event.Key, event.Value)
	}
}

func write(sugar *zap.SugaredLogger, level string, message string) {
	switch level {
	case DebugLevel:
		sugar.Debug(message)
	case InfoLevel:
		sugar.Info(message)
	case WarnLevel:
		sugar.Warn(message)
	case FatalLevel:
		sugar.Errorw(message, "fatal", true)
	default:
		sugar.Error(message)
	}
}

func toZapLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newZapLogger(level string) *zap.SugaredLogger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewConsoleEncoder(cfg)
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(toZapLevel(level)))
	return zap.New(core).Sugar()
}
