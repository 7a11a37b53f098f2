package emit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gabrielmz/pdv-service/internal/fiscal"
	"github.com/gabrielmz/pdv-service/internal/http-server/handlers/emission/emit"
	"github.com/gabrielmz/pdv-service/internal/models"
	"github.com/gabrielmz/pdv-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	sales       map[int64]*models.Sale
	markedID    int64
	markedProto string
}

func (s *fakeStorage) GetSale(_ context.Context, id int64) (*models.Sale, error) {
	if sale, ok := s.sales[id]; ok {
		return sale, nil
	}

	return nil, storage.ErrNoSale
}

func (s *fakeStorage) MarkSaleEmitted(_ context.Context, id int64, protocolo string, _ []byte) error {
	s.markedID = id
	s.markedProto = protocolo

	return nil
}

type stubEmitter struct {
	outcome fiscal.Outcome
	calls   int
}

func (e *stubEmitter) Emit(_ context.Context, _ *models.Sale) fiscal.Outcome {
	e.calls++

	return e.outcome
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededStorage() *fakeStorage {
	return &fakeStorage{sales: map[int64]*models.Sale{
		42: {
			ID:    42,
			Data:  time.Now(),
			Total: 10.0,
			Itens: []models.SaleItem{{Codigo: "001", Nome: "Refrigerante", Quantidade: 2, Preco: 5.0}},
		},
	}}
}

func doRequest(t *testing.T, handler http.HandlerFunc, body string) (*httptest.ResponseRecorder, emit.Response) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/emissions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	var resp emit.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	return rec, resp
}

func TestEmitHandler_Authorized(t *testing.T) {
	store := seededStorage()
	emitter := &stubEmitter{outcome: fiscal.Authorized("135190000000001", []byte("<NFe/>"))}

	handler := emit.New(context.Background(), discardLogger(), store, emitter, nil)

	rec, resp := doRequest(t, handler, `{"saleId":42}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "autorizada", resp.Status)
	assert.Equal(t, "135190000000001", resp.Protocolo)
	assert.Equal(t, "<NFe/>", resp.XML)

	// The protocol is persisted against the sale.
	assert.Equal(t, int64(42), store.markedID)
	assert.Equal(t, "135190000000001", store.markedProto)
}

func TestEmitHandler_RejectedLeavesSaleUntouched(t *testing.T) {
	store := seededStorage()
	emitter := &stubEmitter{outcome: fiscal.Rejected("110", "Uso Denegado")}

	handler := emit.New(context.Background(), discardLogger(), store, emitter, nil)

	rec, resp := doRequest(t, handler, `{"saleId":42}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "rejeitada", resp.Status)
	assert.Equal(t, "Uso Denegado", resp.Detalhes)

	// No protocol write, and the sale is still in the ledger.
	assert.Zero(t, store.markedID)
	sale, err := store.GetSale(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, sale.Protocolo)
}

func TestEmitHandler_GatewayFailure(t *testing.T) {
	store := seededStorage()
	emitter := &stubEmitter{outcome: fiscal.Failed(fiscal.ErrGateway)}

	handler := emit.New(context.Background(), discardLogger(), store, emitter, nil)

	rec, resp := doRequest(t, handler, `{"saleId":42}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "erro", resp.Status)
	assert.Equal(t, "could not reach fiscal authority, please retry", resp.Detalhes)
}

func TestEmitHandler_SaleNotFound(t *testing.T) {
	store := seededStorage()
	emitter := &stubEmitter{outcome: fiscal.Authorized("x", nil)}

	handler := emit.New(context.Background(), discardLogger(), store, emitter, nil)

	rec, _ := doRequest(t, handler, `{"saleId":99}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, emitter.calls)
}

func TestEmitHandler_AlreadyEmitted(t *testing.T) {
	store := seededStorage()
	protocolo := "135190000000001"
	store.sales[42].Protocolo = &protocolo

	emitter := &stubEmitter{outcome: fiscal.Authorized("other", nil)}

	handler := emit.New(context.Background(), discardLogger(), store, emitter, nil)

	rec, resp := doRequest(t, handler, `{"saleId":42}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, protocolo, resp.Protocolo)
	assert.Zero(t, emitter.calls, "an already emitted sale must not reach the gateway again")
}
