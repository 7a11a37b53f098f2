// Package emitter coordinates one NFC-e emission attempt: validate the sale,
// build the document, submit it to SEFAZ and classify the result. Every
// failure is mapped onto the fiscal outcome taxonomy before it leaves this
// package, so callers handle exactly three terminal shapes.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gabrielmz/pdv-service/internal/fiscal"
	"github.com/gabrielmz/pdv-service/internal/models"
	"github.com/gabrielmz/pdv-service/internal/storage"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
	"github.com/google/uuid"
)

// Gateway is the narrow SEFAZ client surface the orchestrator needs.
type Gateway interface {
	Submit(ctx context.Context, doc *fiscal.Document, idempotencyKey string) fiscal.Outcome
}

// Catalog resolves product rows for item backfill and per-product fiscal
// overrides. A cache miss is not fatal: the merchant defaults apply.
type Catalog interface {
	GetProduct(ctx context.Context, codigo string) (*models.Product, error)
}

type Emitter struct {
	gateway Gateway
	catalog Catalog
	builder *fiscal.Builder

	maxAttempts   int
	backoff       time.Duration
	submitTimeout time.Duration

	log *slog.Logger
}

func New(
	gateway Gateway,
	catalog Catalog,
	builder *fiscal.Builder,
	maxAttempts int,
	backoff time.Duration,
	submitTimeout time.Duration,
	log *slog.Logger,
) *Emitter {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Emitter{
		gateway:       gateway,
		catalog:       catalog,
		builder:       builder,
		maxAttempts:   maxAttempts,
		backoff:       backoff,
		submitTimeout: submitTimeout,
		log:           log,
	}
}

// Emit runs one emission attempt for an already persisted sale.
//
// The sequence is validate → build → submit. A malformed sale fails locally
// without any gateway contact. Transport failures are retried up to the
// configured attempt count with a fixed idempotency key, so a duplicate that
// reaches SEFAZ twice is correlatable; rejections are deterministic business
// decisions and are returned after the first verdict. The sale itself is
// never unwound: emission failure must not roll back a completed sale.
//
// The regulator round-trip runs detached from the caller's context. A client
// that disconnects mid-submission may already have produced a binding
// protocol number, so the call is allowed to finish and its outcome logged.
func (e *Emitter) Emit(ctx context.Context, sale *models.Sale) fiscal.Outcome {
	const fn = "fiscal.emitter.Emit"

	log := e.log.With(slog.String("fn", fn), slog.Int64("sale_id", sale.ID))

	if err := validate(sale); err != nil {
		log.Warn("sale failed validation", sl.Err(err))

		return fiscal.Failed(err)
	}

	doc, err := e.builder.Build(sale, e.lookupProducts(ctx, sale))
	if err != nil {
		log.Error("failed to build document", sl.Err(err))

		return fiscal.Failed(err)
	}

	idempotencyKey := uuid.NewString()

	// Detached from the caller so a disconnect can't abandon an in-flight
	// submission; the per-attempt timeout still bounds each round-trip.
	sctx := context.WithoutCancel(ctx)

	var out fiscal.Outcome

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(sctx, e.submitTimeout)
		out = e.gateway.Submit(actx, doc, idempotencyKey)
		cancel()

		if out.Status != fiscal.StatusFailed || !errors.Is(out.Err, fiscal.ErrGateway) {
			break
		}

		log.Warn("gateway failure",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", e.maxAttempts),
			sl.Err(out.Err),
		)

		if attempt < e.maxAttempts {
			time.Sleep(e.backoff)
		}
	}

	switch out.Status {
	case fiscal.StatusAuthorized:
		log.Info("emission authorized", slog.String("protocolo", out.Protocolo))
	case fiscal.StatusRejected:
		log.Info("emission rejected",
			slog.String("codigo", out.CodigoRejeicao),
			slog.String("motivo", out.Motivo),
		)
	case fiscal.StatusFailed:
		log.Error("emission failed", sl.Err(out.Err))
	}

	return out
}

// validate enforces the builder's input constraints before anything else
// runs, keeping malformed sales away from the regulator entirely.
func validate(sale *models.Sale) error {
	if len(sale.Itens) == 0 {
		return fmt.Errorf("%w: %v", fiscal.ErrValidation, storage.ErrEmptySale)
	}

	for i, item := range sale.Itens {
		if item.Quantidade <= 0 || item.Preco <= 0 {
			return fmt.Errorf("%w: item %d has non-positive quantity or price", fiscal.ErrValidation, i+1)
		}
	}

	return nil
}

// lookupProducts backfills catalog rows for the sale's items. Lookup errors
// only cost the per-product overrides, never the emission.
func (e *Emitter) lookupProducts(ctx context.Context, sale *models.Sale) map[string]models.Product {
	if e.catalog == nil {
		return nil
	}

	products := make(map[string]models.Product, len(sale.Itens))

	for _, item := range sale.Itens {
		if item.Codigo == "" {
			continue
		}

		p, err := e.catalog.GetProduct(ctx, item.Codigo)
		if err != nil {
			if !errors.Is(err, storage.ErrNoProduct) {
				e.log.Warn("catalog lookup failed",
					slog.String("codigo", item.Codigo),
					sl.Err(err),
				)
			}

			continue
		}

		products[item.Codigo] = *p
	}

	return products
}
