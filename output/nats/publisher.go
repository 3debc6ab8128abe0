// Package nats republishes normalized vessel reports to a NATS subject
// for downstream consumers outside the relay.
package nats

import (
	"encoding/json"
	"log/slog"

	"github.com/SUNET/ais-data-relay/natsclient"
	"github.com/SUNET/ais-data-relay/normalize"
)

// DefaultSubject is used when no subject is configured
const DefaultSubject = "ais.reports"

// Publisher sends each report as a JSON message. Publish failures are
// logged and dropped; the republish channel is best effort and must
// never stall the ingestion path.
type Publisher struct {
	client  *natsclient.Client
	subject string
	logger  *slog.Logger
}

// NewPublisher creates a report publisher on the given subject
func NewPublisher(client *natsclient.Client, subject string, logger *slog.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{
		client:  client,
		subject: subject,
		logger:  logger.With("component", "nats-publisher"),
	}
}

// Publish marshals the report and sends it on the configured subject
func (p *Publisher) Publish(report normalize.Report) {
	data, err := json.Marshal(report)
	if err != nil {
		p.logger.Error("failed to marshal report", "mmsi", report.MMSI, "error", err)
		return
	}
	if err := p.client.Publish(p.subject, data); err != nil {
		p.logger.Debug("failed to republish report", "mmsi", report.MMSI, "error", err)
	}
}
