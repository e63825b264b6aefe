package metrics

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NatsSink publishes records to a NATS subject.
type NatsSink struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

func NewNatsSink(nc *nats.Conn, subject string, logger *slog.Logger) *NatsSink {
	return &NatsSink{nc: nc, subject: subject, logger: logger}
}

func (s *NatsSink) Emit(rec Record) {
	b, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("failed to marshal metrics record", "error", err)
		return
	}
	if err := s.nc.Publish(s.subject, b); err != nil {
		s.logger.Error("failed to publish metrics record to NATS",
			"subject", s.subject, "error", err)
	}
}
