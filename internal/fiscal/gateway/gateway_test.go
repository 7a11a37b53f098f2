package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gabrielmz/pdv-service/internal/fiscal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nopSigner passes the payload through unchanged; the signing profile is
// covered separately and the protocol tests only care about the round-trip.
type nopSigner struct{}

func (nopSigner) Sign(infNFe []byte) ([]byte, error) {
	return infNFe, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDocument() *fiscal.Document {
	return &fiscal.Document{
		Modelo:   fiscal.ModeloNFCe,
		Ambiente: fiscal.AmbienteHomologacao,
		Emissao:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Emitente: fiscal.Emitente{
			RazaoSocial:     "PDV Exemplo LTDA",
			CNPJ:            "00000000000191",
			IE:              "ISENTO",
			Logradouro:      "Rua Exemplo",
			Numero:          "100",
			Bairro:          "Centro",
			MunicipioCodigo: "3550308",
			UF:              "SP",
			CEP:             "01001000",
		},
		Destinatario: fiscal.HomologBuyer,
		Itens: []fiscal.Item{
			{Numero: 1, Codigo: "001", Descricao: "Refrigerante", NCM: "22021000", CFOP: "5102", Unidade: "UN", Quantidade: 2, ValorUnitario: 5.0},
		},
	}
}

func TestSubmit_Authorized(t *testing.T) {
	var gotKey, gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Idempotency-Key")
		gotContentType = r.Header.Get("Content-Type")

		w.Write([]byte(`<retEnviNFe><cStat>100</cStat><xMotivo>Autorizado o uso da NF-e</xMotivo><protNFe><infProt><nProt>135190000000001</nProt><cStat>100</cStat></infProt></protNFe></retEnviNFe>`))
	}))
	defer srv.Close()

	client := New(srv.URL, nopSigner{}, time.Second, discardLogger())

	out := client.Submit(context.Background(), testDocument(), "key-1")

	assert.Equal(t, fiscal.StatusAuthorized, out.Status)
	assert.Equal(t, "135190000000001", out.Protocolo)
	assert.NotEmpty(t, out.XML)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "application/xml", gotContentType)
}

func TestSubmit_RejectedPreservesVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<retEnviNFe><cStat>110</cStat><xMotivo>Uso Denegado</xMotivo></retEnviNFe>`))
	}))
	defer srv.Close()

	client := New(srv.URL, nopSigner{}, time.Second, discardLogger())

	out := client.Submit(context.Background(), testDocument(), "key-1")

	assert.Equal(t, fiscal.StatusRejected, out.Status)
	assert.Equal(t, "110", out.CodigoRejeicao)
	assert.Equal(t, "Uso Denegado", out.Motivo)
	assert.Nil(t, out.Err)
}

func TestSubmit_TransportErrorIsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := New(srv.URL, nopSigner{}, time.Second, discardLogger())

	out := client.Submit(context.Background(), testDocument(), "key-1")

	assert.Equal(t, fiscal.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, fiscal.ErrGateway)
}

func TestSubmit_TimeoutIsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := New(srv.URL, nopSigner{}, 20*time.Millisecond, discardLogger())

	out := client.Submit(context.Background(), testDocument(), "key-1")

	assert.Equal(t, fiscal.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, fiscal.ErrGateway)
}

func TestSubmit_MalformedResponseIsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not xml at all"))
	}))
	defer srv.Close()

	client := New(srv.URL, nopSigner{}, time.Second, discardLogger())

	out := client.Submit(context.Background(), testDocument(), "key-1")

	assert.Equal(t, fiscal.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, fiscal.ErrGateway)
}

func TestSubmit_HTTPErrorStatusIsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(srv.URL, nopSigner{}, time.Second, discardLogger())

	out := client.Submit(context.Background(), testDocument(), "key-1")

	assert.Equal(t, fiscal.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, fiscal.ErrGateway)
}

func TestSerialize_Deterministic(t *testing.T) {
	doc := testDocument()

	first, err := serialize(doc)
	require.NoError(t, err)

	second, err := serialize(doc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSerialize_OmitsEmptyBuyer(t *testing.T) {
	doc := testDocument()
	doc.Destinatario = ""

	payload, err := serialize(doc)
	require.NoError(t, err)

	assert.NotContains(t, string(payload), "<dest>")
}

func TestEndpoint(t *testing.T) {
	prod, err := Endpoint("SP", fiscal.AmbienteProducao)
	require.NoError(t, err)

	homolog, err := Endpoint("SP", fiscal.AmbienteHomologacao)
	require.NoError(t, err)

	assert.NotEqual(t, prod, homolog)

	// A state without its own authorizer resolves to SVRS.
	rs, err := Endpoint("RJ", fiscal.AmbienteHomologacao)
	require.NoError(t, err)
	assert.Contains(t, rs, "svrs")

	_, err = Endpoint("XX", fiscal.AmbienteHomologacao)
	assert.Error(t, err)

	_, err = Endpoint("SP", fiscal.Ambiente(0))
	assert.Error(t, err)
}

func TestLoadCredential_MissingFileIsCredentialError(t *testing.T) {
	_, err := LoadCredential("/does/not/exist.pfx", "password")

	assert.ErrorIs(t, err, fiscal.ErrCredential)
}
