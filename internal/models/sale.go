package models

import "time"

// Product is one catalog row. NCM, CFOP and Unidade are optional per-product
// fiscal overrides; when nil the merchant-level defaults are used.
type Product struct {
	Codigo string  `json:"codigo" db:"codigo"`
	Nome   string  `json:"nome" db:"nome"`
	Preco  float64 `json:"preco" db:"preco"`

	NCM     *string `json:"ncm,omitempty" db:"ncm"`
	CFOP    *string `json:"cfop,omitempty" db:"cfop"`
	Unidade *string `json:"unidade,omitempty" db:"unidade"`
}

// Sale is one completed checkout. The row is append-only: once recorded it
// is never mutated, except for the fiscal protocol written back after a
// successful emission.
type Sale struct {
	ID        int64     `json:"id" db:"id"`
	Data      time.Time `json:"data" db:"data"`
	Total     float64   `json:"total" db:"total"`
	ValorPago float64   `json:"valorPago" db:"valor_pago"`
	Troco     float64   `json:"troco" db:"troco"`

	Itens []SaleItem `json:"itens"`

	// Protocolo and XMLAutorizado are set once SEFAZ authorizes the NFC-e
	// for this sale. A non-nil Protocolo blocks re-emission.
	Protocolo     *string `json:"protocolo,omitempty" db:"protocolo"`
	XMLAutorizado []byte  `json:"-" db:"xml_autorizado"`
}

// SaleItem is one cart line. Position in Sale.Itens matters: the fiscal line
// number is the 1-based index.
type SaleItem struct {
	Codigo     string  `json:"codigo"`
	Nome       string  `json:"nome"`
	Quantidade float64 `json:"quantidade"`
	Preco      float64 `json:"preco"`
}
