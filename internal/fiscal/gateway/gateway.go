// Package gateway implements the SEFAZ client: it serializes the fiscal
// document, signs it with the merchant credential and performs the single
// synchronous round-trip to the state authorizer. The regulator's verdict is
// translated into the fiscal.Outcome taxonomy; the client itself never
// retries and never deduplicates — both are the orchestrator's job.
package gateway

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gabrielmz/pdv-service/internal/fiscal"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
)

// cStatAutorizado is the only SEFAZ status that authorizes document use.
const cStatAutorizado = "100"

type Client struct {
	url    string
	signer Signer
	client *http.Client
	log    *slog.Logger
}

// New builds a client bound to one authorizer URL. The timeout caps the
// whole round-trip; an unbounded call here would stall the request pool.
func New(url string, signer Signer, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		url:    url,
		signer: signer,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Document serialization. The layout follows the enviNFe/infNFe structure;
// only the fields the NFC-e model actually requires are emitted.

type enderEmitXML struct {
	XLgr    string `xml:"xLgr"`
	Nro     string `xml:"nro"`
	XBairro string `xml:"xBairro"`
	CMun    string `xml:"cMun"`
	UF      string `xml:"UF"`
	CEP     string `xml:"CEP"`
}

type emitXML struct {
	CNPJ      string       `xml:"CNPJ"`
	XNome     string       `xml:"xNome"`
	IE        string       `xml:"IE"`
	EnderEmit enderEmitXML `xml:"enderEmit"`
}

type destXML struct {
	XNome string `xml:"xNome"`
}

type prodXML struct {
	CProd  string `xml:"cProd"`
	XProd  string `xml:"xProd"`
	NCM    string `xml:"NCM"`
	CFOP   string `xml:"CFOP"`
	UCom   string `xml:"uCom"`
	QCom   string `xml:"qCom"`
	VUnCom string `xml:"vUnCom"`
	VProd  string `xml:"vProd"`
}

type detXML struct {
	NItem string  `xml:"nItem,attr"`
	Prod  prodXML `xml:"prod"`
}

type ideXML struct {
	CUF    string `xml:"cUF"`
	NatOp  string `xml:"natOp"`
	Mod    string `xml:"mod"`
	TpAmb  string `xml:"tpAmb"`
	DhEmi  string `xml:"dhEmi"`
	CMunFG string `xml:"cMunFG"`
}

type infNFeXML struct {
	XMLName xml.Name `xml:"infNFe"`
	Versao  string   `xml:"versao,attr"`
	Ide     ideXML   `xml:"ide"`
	Emit    emitXML  `xml:"emit"`
	Dest    *destXML `xml:"dest,omitempty"`
	Det     []detXML `xml:"det"`
}

// retEnviNFe is the authorizer response envelope. cStat/xMotivo carry the
// verdict; protNFe is present on authorization only.
type retEnviNFe struct {
	XMLName xml.Name `xml:"retEnviNFe"`
	CStat   string   `xml:"cStat"`
	XMotivo string   `xml:"xMotivo"`
	ProtNFe *struct {
		InfProt struct {
			NProt string `xml:"nProt"`
			CStat string `xml:"cStat"`
		} `xml:"infProt"`
	} `xml:"protNFe"`
}

func serialize(doc *fiscal.Document) ([]byte, error) {
	uf := codigoUF[doc.Emitente.UF]

	inf := infNFeXML{
		Versao: "4.00",
		Ide: ideXML{
			CUF:    uf,
			NatOp:  "VENDA",
			Mod:    strconv.Itoa(doc.Modelo),
			TpAmb:  strconv.Itoa(int(doc.Ambiente)),
			DhEmi:  doc.Emissao.Format(time.RFC3339),
			CMunFG: doc.Emitente.MunicipioCodigo,
		},
		Emit: emitXML{
			CNPJ:  doc.Emitente.CNPJ,
			XNome: doc.Emitente.RazaoSocial,
			IE:    doc.Emitente.IE,
			EnderEmit: enderEmitXML{
				XLgr:    doc.Emitente.Logradouro,
				Nro:     doc.Emitente.Numero,
				XBairro: doc.Emitente.Bairro,
				CMun:    doc.Emitente.MunicipioCodigo,
				UF:      doc.Emitente.UF,
				CEP:     doc.Emitente.CEP,
			},
		},
	}

	if doc.Destinatario != "" {
		inf.Dest = &destXML{XNome: doc.Destinatario}
	}

	for _, item := range doc.Itens {
		inf.Det = append(inf.Det, detXML{
			NItem: strconv.Itoa(item.Numero),
			Prod: prodXML{
				CProd:  item.Codigo,
				XProd:  item.Descricao,
				NCM:    item.NCM,
				CFOP:   item.CFOP,
				UCom:   item.Unidade,
				QCom:   formatDecimal(item.Quantidade),
				VUnCom: formatDecimal(item.ValorUnitario),
				VProd:  formatDecimal(item.Quantidade * item.ValorUnitario),
			},
		})
	}

	return xml.Marshal(inf)
}

// formatDecimal renders amounts the way the schema expects: fixed point,
// no exponent.
func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Submit signs the document and performs one round-trip to the authorizer.
//
// The idempotency key is constant across orchestrator retries of the same
// emission, letting the far side correlate duplicates. The mapping is:
// cStat 100 → Authorized (protocol number + signed bytes for archival), any
// other cStat → Rejected with the regulator's code and reason verbatim, and
// every transport-level problem → Failed wrapping fiscal.ErrGateway, which
// is the only retryable shape.
func (c *Client) Submit(ctx context.Context, doc *fiscal.Document, idempotencyKey string) fiscal.Outcome {
	const fn = "fiscal.gateway.Submit"

	log := c.log.With(slog.String("fn", fn), slog.String("idempotency_key", idempotencyKey))

	payload, err := serialize(doc)
	if err != nil {
		return fiscal.Failed(fmt.Errorf("%s: can't serialize document: %v", fn, err))
	}

	signed, err := c.signer.Sign(payload)
	if err != nil {
		return fiscal.Failed(fmt.Errorf("%s: can't sign document: %w", fn, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(signed))
	if err != nil {
		return fiscal.Failed(fmt.Errorf("%s: can't create request: %v", fn, err))
	}

	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("X-Idempotency-Key", idempotencyKey)

	log.Info("submitting document to SEFAZ", slog.String("url", c.url))

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error("submission failed", sl.Err(err))

		return fiscal.Failed(fmt.Errorf("%s: %w: %v", fn, fiscal.ErrGateway, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fiscal.Failed(fmt.Errorf("%s: %w: can't read response: %v", fn, fiscal.ErrGateway, err))
	}

	if resp.StatusCode != http.StatusOK {
		return fiscal.Failed(fmt.Errorf("%s: %w: unexpected http status %d", fn, fiscal.ErrGateway, resp.StatusCode))
	}

	var ret retEnviNFe
	if err := xml.Unmarshal(body, &ret); err != nil {
		return fiscal.Failed(fmt.Errorf("%s: %w: malformed response: %v", fn, fiscal.ErrGateway, err))
	}

	if ret.CStat != cStatAutorizado {
		log.Info("document rejected",
			slog.String("cStat", ret.CStat),
			slog.String("xMotivo", ret.XMotivo),
		)

		return fiscal.Rejected(ret.CStat, ret.XMotivo)
	}

	var protocolo string
	if ret.ProtNFe != nil {
		protocolo = ret.ProtNFe.InfProt.NProt
	}

	log.Info("document authorized", slog.String("protocolo", protocolo))

	return fiscal.Authorized(protocolo, signed)
}
