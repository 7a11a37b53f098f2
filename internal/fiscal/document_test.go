package fiscal

import (
	"testing"
	"time"

	"github.com/gabrielmz/pdv-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBuilder(ambiente Ambiente) *Builder {
	return &Builder{
		Emitente: Emitente{
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
		Ambiente: ambiente,
		CSCID:    "000001",
		CSCToken: "token",
		Defaults: Defaults{NCM: "22021000", CFOP: "5102", Unidade: "UN"},
	}
}

func testSale(items ...models.SaleItem) *models.Sale {
	return &models.Sale{
		ID:    1,
		Data:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Total: 10.0,
		Itens: items,
	}
}

func TestBuild_SingleItem(t *testing.T) {
	sale := testSale(models.SaleItem{
		Codigo: "001", Nome: "Refrigerante", Quantidade: 2, Preco: 5.0,
	})

	doc, err := testBuilder(AmbienteHomologacao).Build(sale, nil)
	require.NoError(t, err)

	require.Len(t, doc.Itens, 1)
	assert.Equal(t, 1, doc.Itens[0].Numero)
	assert.Equal(t, "001", doc.Itens[0].Codigo)
	assert.Equal(t, "Refrigerante", doc.Itens[0].Descricao)
	assert.Equal(t, 2.0, doc.Itens[0].Quantidade)
	assert.Equal(t, 5.0, doc.Itens[0].ValorUnitario)
	assert.Equal(t, ModeloNFCe, doc.Modelo)
}

func TestBuild_LineNumbersFollowCartOrder(t *testing.T) {
	sale := testSale(
		models.SaleItem{Codigo: "003", Nome: "Salgado", Quantidade: 1, Preco: 8.0},
		models.SaleItem{Codigo: "001", Nome: "Refrigerante", Quantidade: 2, Preco: 5.0},
		models.SaleItem{Codigo: "002", Nome: "Agua", Quantidade: 3, Preco: 3.5},
	)

	doc, err := testBuilder(AmbienteHomologacao).Build(sale, nil)
	require.NoError(t, err)

	require.Len(t, doc.Itens, len(sale.Itens))

	for i, item := range doc.Itens {
		assert.Equal(t, i+1, item.Numero)
		assert.Equal(t, sale.Itens[i].Codigo, item.Codigo)
	}
}

func TestBuild_MerchantDefaultsApply(t *testing.T) {
	sale := testSale(models.SaleItem{Codigo: "001", Nome: "Refrigerante", Quantidade: 1, Preco: 5.0})

	doc, err := testBuilder(AmbienteHomologacao).Build(sale, nil)
	require.NoError(t, err)

	assert.Equal(t, "22021000", doc.Itens[0].NCM)
	assert.Equal(t, "5102", doc.Itens[0].CFOP)
	assert.Equal(t, "UN", doc.Itens[0].Unidade)
}

func TestBuild_ProductOverridesWin(t *testing.T) {
	sale := testSale(models.SaleItem{Codigo: "001", Nome: "Refrigerante", Quantidade: 1, Preco: 5.0})

	ncm := "22021090"
	unidade := "CX"

	products := map[string]models.Product{
		"001": {Codigo: "001", NCM: &ncm, Unidade: &unidade},
	}

	doc, err := testBuilder(AmbienteHomologacao).Build(sale, products)
	require.NoError(t, err)

	assert.Equal(t, "22021090", doc.Itens[0].NCM)
	assert.Equal(t, "CX", doc.Itens[0].Unidade)
	// No CFOP override, so the merchant default stays.
	assert.Equal(t, "5102", doc.Itens[0].CFOP)
}

func TestBuild_Validation(t *testing.T) {
	cases := []struct {
		name string
		sale *models.Sale
	}{
		{"empty cart", testSale()},
		{"zero quantity", testSale(models.SaleItem{Codigo: "001", Nome: "Refrigerante", Quantidade: 0, Preco: 5.0})},
		{"negative quantity", testSale(models.SaleItem{Codigo: "001", Nome: "Refrigerante", Quantidade: -1, Preco: 5.0})},
		{"zero price", testSale(models.SaleItem{Codigo: "001", Nome: "Refrigerante", Quantidade: 1, Preco: 0})},
		{"missing code", testSale(models.SaleItem{Nome: "Refrigerante", Quantidade: 1, Preco: 5.0})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := testBuilder(AmbienteHomologacao).Build(tc.sale, nil)

			assert.Nil(t, doc)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestBuild_HomologBuyerPlaceholder(t *testing.T) {
	sale := testSale(models.SaleItem{Codigo: "001", Nome: "Refrigerante", Quantidade: 1, Preco: 5.0})

	doc, err := testBuilder(AmbienteHomologacao).Build(sale, nil)
	require.NoError(t, err)
	assert.Equal(t, HomologBuyer, doc.Destinatario)

	doc, err = testBuilder(AmbienteProducao).Build(sale, nil)
	require.NoError(t, err)
	assert.Empty(t, doc.Destinatario)
}

func TestBuild_Deterministic(t *testing.T) {
	sale := testSale(
		models.SaleItem{Codigo: "001", Nome: "Refrigerante", Quantidade: 2, Preco: 5.0},
		models.SaleItem{Codigo: "002", Nome: "Agua", Quantidade: 1, Preco: 3.5},
	)

	b := testBuilder(AmbienteHomologacao)

	first, err := b.Build(sale, nil)
	require.NoError(t, err)

	second, err := b.Build(sale, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
