// Package redis implements the product catalog cache. It sits in front of
// PostgreSQL for the lookups the emission path performs per cart item, and
// is warmed from the database at startup.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/gabrielmz/pdv-service/internal/config"
	"github.com/gabrielmz/pdv-service/internal/models"
	"github.com/gabrielmz/pdv-service/internal/storage"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces catalog entries inside the Redis keyspace.
const keyPrefix = "product:"

// Client wraps the standard redis.Client so the package API can grow
// without leaking the underlying type.
type Client struct {
	*redis.Client
}

// Storage is the source the cache warms from. Declared here so the cache
// does not depend on the postgres package directly.
type Storage interface {
	GetProducts(ctx context.Context) ([]*models.Product, error)
}

// New creates a client and verifies the connection with a PING.
func New(ctx context.Context, cfg config.Redis) (*Client, error) {
	address := net.JoinHostPort(cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("can't ping redis: %v", err)
	}

	return &Client{client}, nil
}

// SaveProduct stores one catalog row keyed by product code, no TTL: the
// catalog is small and invalidated explicitly on delete.
func (c *Client) SaveProduct(ctx context.Context, product *models.Product) error {
	const fn = "storage.redis.SaveProduct"

	productBytes, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("%s: can't marshal product: %v", fn, err)
	}

	if err := c.Set(ctx, keyPrefix+product.Codigo, productBytes, 0).Err(); err != nil {
		return fmt.Errorf("%s: can't set product: %v", fn, err)
	}

	return nil
}

// GetProduct fetches one catalog row by code. A missing key maps to
// storage.ErrNoProduct so callers can fall back to the database.
func (c *Client) GetProduct(ctx context.Context, codigo string) (*models.Product, error) {
	const fn = "storage.redis.GetProduct"

	productJSON, err := c.Get(ctx, keyPrefix+codigo).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNoProduct
	}
	if err != nil {
		return nil, fmt.Errorf("%s: can't get product: %v", fn, err)
	}

	product := &models.Product{}
	if err := json.Unmarshal([]byte(productJSON), product); err != nil {
		return nil, fmt.Errorf("%s: can't unmarshal product json: %v", fn, err)
	}

	return product, nil
}

// DeleteProduct drops a cached row after the catalog row is removed.
func (c *Client) DeleteProduct(ctx context.Context, codigo string) error {
	const fn = "storage.redis.DeleteProduct"

	if err := c.Del(ctx, keyPrefix+codigo).Err(); err != nil {
		return fmt.Errorf("%s: can't delete product: %v", fn, err)
	}

	return nil
}

// Warm loads the whole catalog from the main storage into the cache.
// Called once at startup.
func (c *Client) Warm(ctx context.Context, storage Storage) error {
	const fn = "storage.redis.Warm"

	products, err := storage.GetProducts(ctx)
	if err != nil {
		return fmt.Errorf("%s: can't get products: %v", fn, err)
	}

	for _, product := range products {
		if err := c.SaveProduct(ctx, product); err != nil {
			return fmt.Errorf("%s: %v", fn, err)
		}
	}

	return nil
}
