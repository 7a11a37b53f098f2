package storage

import "errors"

var (
	ErrNoSale         = errors.New("no sale found")
	ErrEmptySale      = errors.New("no items in sale")
	ErrNoProduct      = errors.New("no product found")
	ErrProductExists  = errors.New("product already exists")
	ErrAlreadyEmitted = errors.New("sale already has an authorized invoice")
)
