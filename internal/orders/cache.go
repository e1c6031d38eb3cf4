package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/clickcart-checkout/internal/redisx"
)

// Cache is the subset of a JSON key/value cache CachedStore needs.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

const defaultRedelete = time.Second

// CachedStore serves ByID from the cache and drops the entry whenever the
// order's status changes. Cache failures fall through to the Store.
type CachedStore struct {
	Store
	Cache Cache
	// Redelete is the delay before the entry is dropped a second time after
	// a status change. A ByID that read the old row before the update may
	// cache it after the first delete. Zero means one second.
	Redelete time.Duration
}

func (c *CachedStore) ByID(ctx context.Context, id string) (Order, error) {
	key := fmt.Sprintf(redisx.KeyOrder, id)
	var o Order
	if ok, err := c.Cache.GetJSON(ctx, key, &o); err == nil && ok {
		return o, nil
	}
	o, err := c.Store.ByID(ctx, id)
	if err != nil {
		return Order{}, err
	}
	_ = c.Cache.SetJSON(ctx, key, o, redisx.TTLOrderCache)
	return o, nil
}

func (c *CachedStore) UpdateStatus(ctx context.Context, id string, from, to Status) (Order, error) {
	o, err := c.Store.UpdateStatus(ctx, id, from, to)
	if err != nil && !errors.Is(err, ErrStatusConflict) {
		return Order{}, err
	}
	// a conflict usually means the cached copy was stale
	key := fmt.Sprintf(redisx.KeyOrder, id)
	_ = c.Cache.Del(ctx, key)
	c.redelete(key)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (c *CachedStore) redelete(key string) {
	d := c.Redelete
	if d <= 0 {
		d = defaultRedelete
	}
	time.AfterFunc(d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Cache.Del(ctx, key)
	})
}
