package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/gabrielmz/pdv-service/internal/config"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
)

// Producer is the transactional async producer shared by the fiscal event
// feed and the sale generator.
type Producer struct {
	Producer sarama.AsyncProducer
	Log      *slog.Logger
}

func NewProducer(cfg config.Kafka, log *slog.Logger) (*Producer, error) {
	config := sarama.NewConfig()

	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Producer.Acks)
	config.Producer.Idempotent = cfg.Producer.EnableIdempotence
	config.Net.MaxOpenRequests = 1
	config.Producer.Retry.Max = cfg.Producer.Retries
	config.Producer.Transaction.ID = cfg.Producer.TransactionalId

	p, err := sarama.NewAsyncProducer(cfg.BootstrapServers, config)
	if err != nil {
		return nil, fmt.Errorf("can't create producer: %v", err)
	}

	return &Producer{
		Producer: p,
		Log:      log,
	}, nil
}

// Run owns the producer transaction lifecycle: it opens a transaction,
// commits it on a fixed cadence and closes it out on shutdown. Messages are
// pushed concurrently through PushMessage.
func (p *Producer) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	if err := p.Producer.BeginTxn(); err != nil {
		p.Log.Error("can't begin transaction", sl.Err(err))
		return
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := p.Producer.CommitTxn(); err != nil {
				if abortErr := p.Producer.AbortTxn(); abortErr != nil {
					p.Log.Error("can't abort transaction", sl.Err(abortErr))
				}
				p.Log.Error("can't commit transaction", sl.Err(err))
			}

			return

		case <-ticker.C:
			if err := p.Producer.CommitTxn(); err != nil {
				if abortErr := p.Producer.AbortTxn(); abortErr != nil {
					p.Log.Error("can't abort transaction", sl.Err(abortErr))
				}

				p.Log.Error("can't commit transaction", sl.Err(err))
			}

			if err := p.Producer.BeginTxn(); err != nil {
				p.Log.Error("can't begin transaction", sl.Err(err))

				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

// PushMessage enqueues one message. The async producer reports delivery
// through the Successes/Errors channels drained by HandleResult.
func (p *Producer) PushMessage(topic string, key string, message []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(message),
	}

	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	p.Producer.Input() <- msg

	return nil
}

// HandleResult drains the producer feedback channels until shutdown.
func (p *Producer) HandleResult(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	go func() {
		for success := range p.Producer.Successes() {
			p.Log.Info("message sent successfully",
				slog.Int("partition", int(success.Partition)),
				slog.Int64("offset", success.Offset),
			)
		}
	}()

	go func() {
		for err := range p.Producer.Errors() {
			p.Log.Error("failed to send message", sl.Err(err))
		}
	}()

	<-ctx.Done()
}
