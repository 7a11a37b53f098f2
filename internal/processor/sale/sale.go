// Package processor drains the sales intake channel into the ledger. Sales
// arrive from POS terminals in batches; each batch is written concurrently
// through the worker pool and the consumed offsets are committed only for
// the messages that actually landed in Postgres.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"
	"github.com/gabrielmz/pdv-service/internal/models"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
	wp "github.com/gabrielmz/pdv-service/lib/workerpool"
)

type Storage interface {
	SaveSale(ctx context.Context, sale *models.Sale) (int64, error)
}

type IPool interface {
	Create()
	Handle(context.Context, *sarama.ConsumerMessage) error
	Wait()
}

type Processor struct {
	Storage    Storage
	saleChan   <-chan *sarama.ConsumerMessage
	commitChan chan<- *sarama.ConsumerMessage
	log        *slog.Logger
}

func New(
	storage Storage,
	saleChan <-chan *sarama.ConsumerMessage,
	commitChan chan<- *sarama.ConsumerMessage,
	log *slog.Logger,
) *Processor {
	return &Processor{
		Storage:    storage,
		saleChan:   saleChan,
		commitChan: commitChan,
		log:        log,
	}
}

func (p *Processor) ProcessSales(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	const fn = "processor.sale.ProcessSales"
	log := p.log.With("fn", fn)

	sales := make([]*sarama.ConsumerMessage, 0, wp.MaxWorkersCount)

	pool := wp.New(p.processSale)

	for {
		select {
		case <-ctx.Done():
			if len(sales) != 0 {
				p.processBatch(ctx, sales, pool)
			}

			log.Info("stopping sale processing by context")
			return

		case sale := <-p.saleChan:
			sales = append(sales, sale)

			if len(sales) == wp.MaxWorkersCount {
				p.processBatch(ctx, sales, pool)

				sales = make([]*sarama.ConsumerMessage, 0, wp.MaxWorkersCount)
			}
		}
	}
}

func (p *Processor) processBatch(ctx context.Context, sales []*sarama.ConsumerMessage, pool IPool) {
	pool.Create()

	wg := &sync.WaitGroup{}

	for _, sale := range sales {
		wg.Add(1)

		go func(currentSale *sarama.ConsumerMessage) {
			defer wg.Done()

			err := pool.Handle(ctx, currentSale)
			if err != nil {
				p.log.Error("failed to handle sale message", sl.Err(err))
			} else {
				p.commitChan <- currentSale
			}
		}(sale)
	}

	wg.Wait()
	pool.Wait()
}

func (p *Processor) processSale(ctx context.Context, msg *sarama.ConsumerMessage) error {
	p.log.Info("received new sale")

	var sale models.Sale
	if err := json.Unmarshal(msg.Value, &sale); err != nil {
		p.log.Error("can't unmarshal json", sl.Err(err))

		return fmt.Errorf("can't unmarshal json: %v", err)
	}

	p.log.Info("saving sale in database")

	id, err := p.Storage.SaveSale(ctx, &sale)
	if err != nil {
		p.log.Error("failed to save sale in database", sl.Err(err))

		return fmt.Errorf("failed to save sale in database: %v", err)
	}

	p.log.Info("saving was successful", slog.Int64("sale_id", id))

	return nil
}
