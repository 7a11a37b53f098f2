package fiscal

import (
	"fmt"
	"time"

	"github.com/gabrielmz/pdv-service/internal/models"
)

// HomologBuyer is the buyer name SEFAZ requires on documents submitted to
// the homologation environment.
const HomologBuyer = "NF-E EMITIDA EM AMBIENTE DE HOMOLOGACAO"

// Emitente is the merchant identity block of the document.
type Emitente struct {
	RazaoSocial     string
	CNPJ            string
	IE              string
	Logradouro      string
	Numero          string
	Bairro          string
	MunicipioCodigo string
	UF              string
	CEP             string
}

// Defaults are the merchant-level item codes applied when a product carries
// no override of its own.
type Defaults struct {
	NCM     string
	CFOP    string
	Unidade string
}

// Item is one fiscal line of the document. Numero is the 1-based position of
// the item in the originating cart.
type Item struct {
	Numero        int
	Codigo        string
	Descricao     string
	NCM           string
	CFOP          string
	Unidade       string
	Quantidade    float64
	ValorUnitario float64
}

// Document is a fully assembled NFC-e request, ready to be serialized and
// signed. It is built fresh per emission attempt and never persisted: no
// document number exists until SEFAZ authorizes it.
type Document struct {
	Modelo   int
	Ambiente Ambiente
	Emissao  time.Time

	Emitente     Emitente
	Destinatario string

	CSCID    string
	CSCToken string

	Itens []Item
}

// Builder maps a completed sale plus the merchant profile into a Document.
// All fields are read-only after construction, so a single Builder is safe
// to share across requests.
type Builder struct {
	Emitente Emitente
	Ambiente Ambiente
	CSCID    string
	CSCToken string
	Defaults Defaults

	// Destinatario optionally names the buyer. When empty, the document goes
	// out to an anonymous consumer, except in homologation where SEFAZ
	// mandates a fixed placeholder name.
	Destinatario string
}

// Build assembles the fiscal document for a sale. products optionally maps
// item codes to catalog rows used for per-product NCM/CFOP/unit overrides;
// a nil map means merchant defaults apply to every line.
//
// Build is pure: it never contacts an external system, and two calls with
// the same inputs yield structurally identical documents. Malformed sales
// fail with an error wrapping ErrValidation.
func (b *Builder) Build(sale *models.Sale, products map[string]models.Product) (*Document, error) {
	const fn = "fiscal.Build"

	if len(sale.Itens) == 0 {
		return nil, fmt.Errorf("%s: %w: sale has no items", fn, ErrValidation)
	}

	itens := make([]Item, 0, len(sale.Itens))

	for i, item := range sale.Itens {
		if item.Codigo == "" {
			return nil, fmt.Errorf("%s: %w: item %d has no product code", fn, ErrValidation, i+1)
		}
		if item.Quantidade <= 0 {
			return nil, fmt.Errorf("%s: %w: item %d has non-positive quantity", fn, ErrValidation, i+1)
		}
		if item.Preco <= 0 {
			return nil, fmt.Errorf("%s: %w: item %d has non-positive unit price", fn, ErrValidation, i+1)
		}

		ncm, cfop, unidade := b.Defaults.NCM, b.Defaults.CFOP, b.Defaults.Unidade

		if p, ok := products[item.Codigo]; ok {
			if p.NCM != nil {
				ncm = *p.NCM
			}
			if p.CFOP != nil {
				cfop = *p.CFOP
			}
			if p.Unidade != nil {
				unidade = *p.Unidade
			}
		}

		itens = append(itens, Item{
			Numero:        i + 1,
			Codigo:        item.Codigo,
			Descricao:     item.Nome,
			NCM:           ncm,
			CFOP:          cfop,
			Unidade:       unidade,
			Quantidade:    item.Quantidade,
			ValorUnitario: item.Preco,
		})
	}

	dest := b.Destinatario
	if dest == "" && b.Ambiente == AmbienteHomologacao {
		dest = HomologBuyer
	}

	return &Document{
		Modelo:       ModeloNFCe,
		Ambiente:     b.Ambiente,
		Emissao:      sale.Data,
		Emitente:     b.Emitente,
		Destinatario: dest,
		CSCID:        b.CSCID,
		CSCToken:     b.CSCToken,
		Itens:        itens,
	}, nil
}
