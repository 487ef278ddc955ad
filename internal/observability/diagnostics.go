package observability

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/locsmith/api/schemas"
)

// LogSink is a DiagnosticSink that writes each record as a debug log entry.
type LogSink struct {
	logger *zap.Logger
}

var _ schemas.DiagnosticSink = (*LogSink)(nil)

// NewLogSink returns a sink writing to logger. A nil logger yields a sink
// that discards everything.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("diagnostics")}
}

// Record writes data under label.
func (s *LogSink) Record(label string, data any) {
	if ce := s.logger.Check(zap.DebugLevel, "diagnostic record"); ce != nil {
		ce.Write(zap.String("label", label), zap.Any("data", data))
	}
}

// SinkOrNop returns sink or a NopSink when sink is nil.
func SinkOrNop(sink schemas.DiagnosticSink) schemas.DiagnosticSink {
	if sink == nil {
		return schemas.NopSink{}
	}
	return sink
}
