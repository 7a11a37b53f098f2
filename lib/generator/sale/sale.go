// Package saleGen generates random but structurally valid sales. It is the
// data source of the sale-generator service, which emulates the stream of
// completed checkouts POS terminals publish to Kafka.
package saleGen

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gabrielmz/pdv-service/internal/models"
)

// A fixed mini-catalog keeps the generated carts joinable against the
// products table seeded for local runs.
var catalog = []models.SaleItem{
	{Codigo: "001", Nome: "Refrigerante Lata 350ml", Preco: 5.0},
	{Codigo: "002", Nome: "Agua Mineral 500ml", Preco: 3.5},
	{Codigo: "003", Nome: "Salgado Assado", Preco: 8.0},
	{Codigo: "004", Nome: "Cafe Expresso", Preco: 6.0},
	{Codigo: "005", Nome: "Chocolate 90g", Preco: 7.5},
	{Codigo: "006", Nome: "Pao de Queijo", Preco: 4.0},
}

// GenerateSale builds one random sale and serializes it to JSON.
//
// Returns the emulated terminal id, used as the Kafka message key so one
// terminal's sales stay ordered within a partition, and the JSON payload.
func GenerateSale() (string, []byte) {
	terminalID := fmt.Sprintf("pdv-%02d", gofakeit.Number(1, 8))

	itemsCount := gofakeit.Number(1, 4)
	items := make([]models.SaleItem, 0, itemsCount)

	var total float64

	for range itemsCount {
		item := catalog[gofakeit.Number(0, len(catalog)-1)]
		item.Quantidade = float64(gofakeit.Number(1, 5))

		items = append(items, item)
		total += item.Quantidade * item.Preco
	}

	total = math.Round(total*100) / 100

	// Customers pay with a rounded-up note; troco is the difference.
	valorPago := math.Ceil(total/10) * 10
	if valorPago == 0 {
		valorPago = total
	}

	sale := models.Sale{
		Total:     total,
		ValorPago: valorPago,
		Troco:     math.Round((valorPago-total)*100) / 100,
		Itens:     items,
	}

	jsonData, err := json.Marshal(sale)
	if err != nil {
		fmt.Println("Error marshaling to JSON:", err)
		return "", nil
	}

	return terminalID, jsonData
}
