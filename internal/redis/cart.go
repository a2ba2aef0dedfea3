// Package redis implements the external cart contract on Redis. A customer's
// cart lives in a single list of JSON-encoded lines; the core only reads it
// as a snapshot and deletes it wholesale after an order commits.
package redis

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"

	"shopledger/internal/domain/cart"
)

const cartKeyPrefix = "cart:"

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

var _ cart.Provider = (*CartStore)(nil)

// CartStore implements cart.Provider backed by Redis.
type CartStore struct {
	client *redis.Client
}

// NewCartStore returns a CartStore over the given client.
func NewCartStore(client *redis.Client) *CartStore {
	return &CartStore{client: client}
}

// cartLine is the wire form of one cart entry.
type cartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Variant   string `json:"variant,omitempty"`
}

// Snapshot returns the customer's cart lines in insertion order. A missing
// key is an empty cart, not an error.
func (s *CartStore) Snapshot(ctx context.Context, customerID string) ([]cart.Item, error) {
	raw, err := s.client.LRange(ctx, cartKeyPrefix+customerID, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}

	items := make([]cart.Item, 0, len(raw))
	for _, entry := range raw {
		var line cartLine
		if err := json.Unmarshal([]byte(entry), &line); err != nil {
			return nil, errors.Wrap(err, "decode cart line")
		}
		items = append(items, cart.Item{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Variant:   line.Variant,
		})
	}
	return items, nil
}

// Clear removes the customer's cart entirely.
func (s *CartStore) Clear(ctx context.Context, customerID string) error {
	if err := s.client.Del(ctx, cartKeyPrefix+customerID).Err(); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Add appends a line to the customer's cart. The storefront writes carts;
// it is exposed here so seeding and tests share the same encoding.
func (s *CartStore) Add(ctx context.Context, customerID string, item cart.Item) error {
	payload, err := json.Marshal(cartLine{
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Variant:   item.Variant,
	})
	if err != nil {
		return errors.Wrap(err, "encode cart line")
	}
	if err := s.client.RPush(ctx, cartKeyPrefix+customerID, payload).Err(); err != nil {
		return errors.Wrap(err, "append cart line")
	}
	return nil
}
