package emitter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gabrielmz/pdv-service/internal/fiscal"
	"github.com/gabrielmz/pdv-service/internal/models"
	"github.com/gabrielmz/pdv-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyGateway records every Submit call and replays scripted outcomes.
type spyGateway struct {
	outcomes []fiscal.Outcome
	calls    int
	keys     []string
}

func (g *spyGateway) Submit(_ context.Context, _ *fiscal.Document, idempotencyKey string) fiscal.Outcome {
	idx := g.calls
	if idx >= len(g.outcomes) {
		idx = len(g.outcomes) - 1
	}

	g.calls++
	g.keys = append(g.keys, idempotencyKey)

	return g.outcomes[idx]
}

type spyCatalog struct {
	products map[string]*models.Product
}

func (c *spyCatalog) GetProduct(_ context.Context, codigo string) (*models.Product, error) {
	if p, ok := c.products[codigo]; ok {
		return p, nil
	}

	return nil, storage.ErrNoProduct
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBuilder() *fiscal.Builder {
	return &fiscal.Builder{
		Emitente: fiscal.Emitente{
			RazaoSocial: "PDV Exemplo LTDA",
			CNPJ:        "00000000000191",
			UF:          "SP",
		},
		Ambiente: fiscal.AmbienteHomologacao,
		Defaults: fiscal.Defaults{NCM: "22021000", CFOP: "5102", Unidade: "UN"},
	}
}

func newEmitter(gw Gateway, catalog Catalog, attempts int) *Emitter {
	return New(gw, catalog, testBuilder(), attempts, time.Millisecond, time.Second, discardLogger())
}

func validSale() *models.Sale {
	return &models.Sale{
		ID:    42,
		Data:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Total: 10.0,
		Itens: []models.SaleItem{
			{Codigo: "001", Nome: "Refrigerante", Quantidade: 2, Preco: 5.0},
		},
	}
}

func TestEmit_Authorized(t *testing.T) {
	gw := &spyGateway{outcomes: []fiscal.Outcome{
		fiscal.Authorized("135190000000001", []byte("<NFe/>")),
	}}

	out := newEmitter(gw, nil, 3).Emit(context.Background(), validSale())

	assert.Equal(t, fiscal.StatusAuthorized, out.Status)
	assert.Equal(t, "135190000000001", out.Protocolo)
	assert.Equal(t, []byte("<NFe/>"), out.XML)
	assert.Equal(t, 1, gw.calls)
}

func TestEmit_RejectedIsNeverRetried(t *testing.T) {
	gw := &spyGateway{outcomes: []fiscal.Outcome{
		fiscal.Rejected("110", "Uso Denegado"),
	}}

	out := newEmitter(gw, nil, 3).Emit(context.Background(), validSale())

	assert.Equal(t, fiscal.StatusRejected, out.Status)
	assert.Equal(t, "110", out.CodigoRejeicao)
	assert.Equal(t, "Uso Denegado", out.Motivo)
	assert.Equal(t, 1, gw.calls)
}

func TestEmit_EmptySaleNeverReachesGateway(t *testing.T) {
	gw := &spyGateway{outcomes: []fiscal.Outcome{fiscal.Authorized("x", nil)}}

	sale := validSale()
	sale.Itens = nil

	out := newEmitter(gw, nil, 3).Emit(context.Background(), sale)

	assert.Equal(t, fiscal.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, fiscal.ErrValidation)
	assert.Zero(t, gw.calls)
}

func TestEmit_NonPositiveItemNeverReachesGateway(t *testing.T) {
	gw := &spyGateway{outcomes: []fiscal.Outcome{fiscal.Authorized("x", nil)}}

	sale := validSale()
	sale.Itens[0].Quantidade = -2

	out := newEmitter(gw, nil, 3).Emit(context.Background(), sale)

	assert.Equal(t, fiscal.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, fiscal.ErrValidation)
	assert.Zero(t, gw.calls)
}

func TestEmit_GatewayFailureIsRetried(t *testing.T) {
	gatewayDown := fiscal.Failed(fmt.Errorf("submit: %w: connection refused", fiscal.ErrGateway))

	gw := &spyGateway{outcomes: []fiscal.Outcome{
		gatewayDown,
		gatewayDown,
		fiscal.Authorized("135190000000001", []byte("<NFe/>")),
	}}

	out := newEmitter(gw, nil, 3).Emit(context.Background(), validSale())

	assert.Equal(t, fiscal.StatusAuthorized, out.Status)
	assert.Equal(t, 3, gw.calls)

	// Retries of one emission reuse the same idempotency key.
	require.Len(t, gw.keys, 3)
	assert.Equal(t, gw.keys[0], gw.keys[1])
	assert.Equal(t, gw.keys[0], gw.keys[2])
	assert.NotEmpty(t, gw.keys[0])
}

func TestEmit_GatewayFailureExhaustsAttempts(t *testing.T) {
	gatewayDown := fiscal.Failed(fmt.Errorf("submit: %w: timeout", fiscal.ErrGateway))

	gw := &spyGateway{outcomes: []fiscal.Outcome{gatewayDown}}

	out := newEmitter(gw, nil, 3).Emit(context.Background(), validSale())

	assert.Equal(t, fiscal.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, fiscal.ErrGateway)
	assert.Equal(t, 3, gw.calls)
}

func TestEmit_CredentialFailureIsNotRetried(t *testing.T) {
	gw := &spyGateway{outcomes: []fiscal.Outcome{
		fiscal.Failed(fmt.Errorf("sign: %w", fiscal.ErrCredential)),
	}}

	out := newEmitter(gw, nil, 3).Emit(context.Background(), validSale())

	assert.Equal(t, fiscal.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, fiscal.ErrCredential)
	assert.Equal(t, 1, gw.calls)
}

func TestEmit_CatalogOverridesReachDocument(t *testing.T) {
	ncm := "22021090"

	catalog := &spyCatalog{products: map[string]*models.Product{
		"001": {Codigo: "001", Nome: "Refrigerante", Preco: 5.0, NCM: &ncm},
	}}

	var captured *fiscal.Document

	gw := gatewayFunc(func(_ context.Context, doc *fiscal.Document, _ string) fiscal.Outcome {
		captured = doc
		return fiscal.Authorized("135190000000001", nil)
	})

	out := newEmitter(gw, catalog, 1).Emit(context.Background(), validSale())

	require.Equal(t, fiscal.StatusAuthorized, out.Status)
	require.NotNil(t, captured)
	assert.Equal(t, "22021090", captured.Itens[0].NCM)
}

type gatewayFunc func(ctx context.Context, doc *fiscal.Document, idempotencyKey string) fiscal.Outcome

func (f gatewayFunc) Submit(ctx context.Context, doc *fiscal.Document, idempotencyKey string) fiscal.Outcome {
	return f(ctx, doc, idempotencyKey)
}
