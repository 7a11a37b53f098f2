// package main is the entry point of the sale generator, a POS terminal
// emulator. It produces random completed sales to the sales topic so the
// intake pipeline can be exercised without a real frontend. The service
// supports graceful shutdown on SIGINT/SIGTERM, waiting for the active
// goroutines and closing the Kafka producer.
package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gabrielmz/pdv-service/internal/config"
	"github.com/gabrielmz/pdv-service/internal/storage/kafka"
	saleGen "github.com/gabrielmz/pdv-service/lib/generator/sale"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
	"github.com/gabrielmz/pdv-service/lib/logger/slogpretty"
)

// maxTimeToSleep caps the random pause between generated sales, in seconds.
const maxTimeToSleep = 10

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := config.MustLoad()

	log := slogpretty.SetupLogger(cfg.Env)

	log.Info("starting sale generator", slog.String("env", cfg.Env))

	p, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Error("failed to init producer", sl.Err(err))
		os.Exit(1)
	}
	log.Info("producer init successful")

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	wg := &sync.WaitGroup{}

	wg.Add(1)
	go p.Run(ctx, wg)

	wg.Add(1)
	go p.HandleResult(ctx, wg)

	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			default:
				terminalID, sale := saleGen.GenerateSale()

				if err := p.PushMessage(cfg.Kafka.SalesTopic, terminalID, sale); err != nil {
					log.Error("can't push message to queue", sl.Err(err))
				}

				timeToSleep := rand.IntN(maxTimeToSleep + 1)

				time.Sleep(time.Duration(timeToSleep) * time.Second)
			}
		}
	}()

	<-sigchan
	cancel()

	wg.Wait()

	log.Info("stopping producer")
	p.Producer.Close()
}
