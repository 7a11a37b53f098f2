// Package events publishes the terminal outcome of every emission attempt
// to a Kafka topic, giving downstream consumers (archival, accounting) a
// feed of authorized and rejected documents without polling the database.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gabrielmz/pdv-service/internal/fiscal"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
)

// Producer is the message-pushing surface of the Kafka producer.
type Producer interface {
	PushMessage(topic string, key string, message []byte) error
}

type Publisher struct {
	producer Producer
	topic    string
	log      *slog.Logger
}

func New(producer Producer, topic string, log *slog.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		log:      log,
	}
}

// Event is the wire shape of one emission outcome.
type Event struct {
	SaleID     int64     `json:"sale_id"`
	Status     string    `json:"status"`
	Protocolo  string    `json:"protocolo,omitempty"`
	Codigo     string    `json:"codigo,omitempty"`
	Motivo     string    `json:"motivo,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PublishOutcome sends the outcome of one emission attempt. Publishing is
// best effort: a broker problem is logged and must never fail the emission
// itself, which already has a binding result.
func (p *Publisher) PublishOutcome(saleID int64, out fiscal.Outcome) {
	const fn = "fiscal.events.PublishOutcome"

	event := Event{
		SaleID:     saleID,
		Status:     out.Status.String(),
		Protocolo:  out.Protocolo,
		Codigo:     out.CodigoRejeicao,
		Motivo:     out.Motivo,
		OccurredAt: time.Now().UTC(),
	}

	if out.Status == fiscal.StatusFailed && out.Err != nil {
		event.Motivo = out.Err.Error()
	}

	message, err := json.Marshal(event)
	if err != nil {
		p.log.Error(fmt.Sprintf("%s: can't marshal event", fn), sl.Err(err))
		return
	}

	if err := p.producer.PushMessage(p.topic, strconv.FormatInt(saleID, 10), message); err != nil {
		p.log.Error(fmt.Sprintf("%s: can't publish event", fn), sl.Err(err))
	}
}
