package services

import (
	"errors"

	"go.uber.org/zap"

	"github.com/kerbaras/mangaqueue/pkg/logging"
)

// LogFaultReporter writes reported faults to a zap logger.
type LogFaultReporter struct {
	logger *zap.Logger
}

func NewLogFaultReporter(logger *zap.Logger) *LogFaultReporter {
	return &LogFaultReporter{logger: logging.OrNop(logger)}
}

func (r *LogFaultReporter) Report(err error) {
	if err == nil {
		return
	}
	fields := []zap.Field{zap.Error(err)}

	var fatal *FatalJobError
	var transient *TransientFetchError
	switch {
	case errors.As(err, &fatal):
		fields = append(fields, zap.String("kind", "fatal"), zap.String("source", fatal.Source))
	case errors.As(err, &transient):
		fields = append(fields,
			zap.String("kind", "transient"),
			zap.String("stage", transient.Stage),
			zap.Int("chapter", transient.Chapter),
			zap.Int("page", transient.Page),
		)
	}
	r.logger.Error("download fault", fields...)
}
