// Package catalog serves the marketplace product list with a short-lived
// cache shared by every buyer.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/vasiliy-maslov/farm-checkout/internal/cart"
	"github.com/vasiliy-maslov/farm-checkout/internal/marketplace"
)

type Source interface {
	Products(ctx context.Context) ([]marketplace.Product, error)
}

type Catalog struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	products  []cart.Product
	fetchedAt time.Time

	sfg singleflight.Group // one upstream fetch at a time
}

func New(source Source, ttl time.Duration) *Catalog {
	return &Catalog{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Products returns the cached list, fetching when it is older than the TTL.
func (c *Catalog) Products(ctx context.Context) ([]cart.Product, error) {
	c.mu.RLock()
	products, fetchedAt := c.products, c.fetchedAt
	c.mu.RUnlock()

	if products != nil && c.now().Sub(fetchedAt) < c.ttl {
		return products, nil
	}

	return c.Refresh(ctx)
}

// Refresh bypasses the cache. Checkout uses it so stock limits are current.
// The shared fetch outlives any single caller's cancellation and is bounded by
// the source's own timeout; a cancelled caller stops waiting for it.
func (c *Catalog) Refresh(ctx context.Context) ([]cart.Product, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.sfg.DoChan("products", func() (interface{}, error) {
		raw, err := c.source.Products(fetchCtx)
		if err != nil {
			return nil, err
		}

		products := make([]cart.Product, 0, len(raw))
		for _, p := range raw {
			if p.ID <= 0 {
				log.Warn().Str("name", p.Name).Msg("catalog: skipping product without id")
				continue
			}
			products = append(products, FromMarketplace(p))
		}

		c.mu.Lock()
		c.products = products
		c.fetchedAt = c.now()
		c.mu.Unlock()

		return products, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("catalog: refresh products: %w", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, fmt.Errorf("catalog: refresh products: %w", res.Err)
	}
	if res.Shared {
		log.Debug().Msg("catalog: product fetch shared between callers")
	}

	return res.Val.([]cart.Product), nil
}

func FromMarketplace(p marketplace.Product) cart.Product {
	return cart.Product{
		ID:        int64(p.ID),
		Name:      p.Name,
		Price:     p.Price.Decimal,
		PriceKg:   p.PriceKg.Decimal,
		PriceGram: p.PriceGram.Decimal,
		Stock:     int(p.Stock),
		ImageURL:  p.ImageURL,
		Farmer:    p.Farmer.String(),
	}
}
