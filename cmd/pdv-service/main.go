package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gabrielmz/pdv-service/internal/config"
	"github.com/gabrielmz/pdv-service/internal/fiscal"
	"github.com/gabrielmz/pdv-service/internal/fiscal/emitter"
	"github.com/gabrielmz/pdv-service/internal/fiscal/events"
	"github.com/gabrielmz/pdv-service/internal/fiscal/gateway"
	emitHandler "github.com/gabrielmz/pdv-service/internal/http-server/handlers/emission/emit"
	productList "github.com/gabrielmz/pdv-service/internal/http-server/handlers/product/list"
	productRemove "github.com/gabrielmz/pdv-service/internal/http-server/handlers/product/remove"
	productSave "github.com/gabrielmz/pdv-service/internal/http-server/handlers/product/save"
	saleGet "github.com/gabrielmz/pdv-service/internal/http-server/handlers/sale/get"
	saleSave "github.com/gabrielmz/pdv-service/internal/http-server/handlers/sale/save"
	mwLogger "github.com/gabrielmz/pdv-service/internal/http-server/middleware/logger"
	processor "github.com/gabrielmz/pdv-service/internal/processor/sale"
	"github.com/gabrielmz/pdv-service/internal/storage/kafka"
	"github.com/gabrielmz/pdv-service/internal/storage/postgres"
	"github.com/gabrielmz/pdv-service/internal/storage/redis"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
	"github.com/gabrielmz/pdv-service/lib/logger/slogpretty"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := &sync.WaitGroup{}

	cfg := config.MustLoad()

	log := slogpretty.SetupLogger(cfg.Env)

	log.Info("starting pdv service", slog.String("env", cfg.Env))

	storage, err := postgres.New(cfg.Postgres, log)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	log.Info("storage init successful")

	cache, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to init cache", sl.Err(err))
		os.Exit(1)
	}

	if err := cache.Warm(ctx, storage); err != nil {
		log.Error("failed to warm cache", sl.Err(err))
		os.Exit(1)
	}

	log.Info("cache init successful")

	// The credential is loaded before anything listens: a wrong certificate
	// password must fail startup, not the first emission.
	credential, err := gateway.LoadCredential(cfg.Fiscal.CertPath, cfg.Fiscal.CertPassword)
	if err != nil {
		log.Error("failed to load signing credential", sl.Err(err))
		os.Exit(1)
	}

	endpoint, err := gateway.Endpoint(cfg.Emitente.UF, fiscal.Ambiente(cfg.Fiscal.Ambiente))
	if err != nil {
		log.Error("failed to resolve SEFAZ endpoint", sl.Err(err))
		os.Exit(1)
	}

	gw := gateway.New(endpoint, credential, cfg.Fiscal.Gateway.Timeout, log)

	builder := &fiscal.Builder{
		Emitente: fiscal.Emitente{
			RazaoSocial:     cfg.Emitente.RazaoSocial,
			CNPJ:            cfg.Emitente.CNPJ,
			IE:              cfg.Emitente.IE,
			Logradouro:      cfg.Emitente.Logradouro,
			Numero:          cfg.Emitente.Numero,
			Bairro:          cfg.Emitente.Bairro,
			MunicipioCodigo: cfg.Emitente.MunicipioCodigo,
			UF:              cfg.Emitente.UF,
			CEP:             cfg.Emitente.CEP,
		},
		Ambiente: fiscal.Ambiente(cfg.Fiscal.Ambiente),
		CSCID:    cfg.Fiscal.CSCID,
		CSCToken: cfg.Fiscal.CSCToken,
		Defaults: fiscal.Defaults{
			NCM:     cfg.Fiscal.NCM,
			CFOP:    cfg.Fiscal.CFOP,
			Unidade: cfg.Fiscal.Unidade,
		},
	}

	em := emitter.New(
		gw,
		cache,
		builder,
		cfg.Fiscal.Gateway.MaxAttempts,
		cfg.Fiscal.Gateway.Backoff,
		cfg.Fiscal.Gateway.Timeout,
		log,
	)

	log.Info("fiscal emitter init successful",
		slog.String("uf", cfg.Emitente.UF),
		slog.Int("ambiente", cfg.Fiscal.Ambiente),
	)

	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Error("failed to init producer", sl.Err(err))
		os.Exit(1)
	}

	wg.Add(2)
	go producer.Run(ctx, wg)
	go producer.HandleResult(ctx, wg)

	publisher := events.New(producer, cfg.Kafka.FiscalTopic, log)

	// Sales intake from POS terminals.
	saleChan := make(chan *sarama.ConsumerMessage)
	commitChan := make(chan *sarama.ConsumerMessage)

	proc := processor.New(storage, saleChan, commitChan, log)

	wg.Add(1)
	go proc.ProcessSales(ctx, wg)

	consumer, err := kafka.NewConsumer(cfg.Kafka, saleChan, commitChan, log)
	if err != nil {
		log.Error("failed to init consumer", sl.Err(err))
		os.Exit(1)
	}

	wg.Add(1)
	go consumer.ProcessMessages(ctx, cfg.Kafka.SalesTopic, wg)

	log.Info("sales intake init successful")

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(mwLogger.New(log))

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Servidor do PDV está a funcionar!"))
	})

	router.Route("/api", func(r chi.Router) {
		r.Get("/products", productList.New(ctx, log, storage))
		r.Post("/products", productSave.New(ctx, log, storage, cache))
		r.Delete("/products/{codigo}", productRemove.New(ctx, log, storage, cache))

		r.Post("/sales", saleSave.New(ctx, log, storage))
		r.Get("/sales/{id}", saleGet.New(ctx, log, storage))

		emissions := emitHandler.New(ctx, log, storage, em, publisher)
		r.Post("/emissions", emissions)
		// Route kept for frontends written against the original API.
		r.Post("/emitir-nfce", emissions)
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting http server", slog.String("address", cfg.HTTPServer.Address))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", sl.Err(err))
		}
	}()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	<-sigchan

	log.Info("shutting down")

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error("failed to stop http server", sl.Err(err))
	}

	cancel()

	wg.Wait()

	log.Info("shutting down consumer")
	consumer.Consumer.Close()

	log.Info("shutting down producer")
	producer.Producer.Close()
}
