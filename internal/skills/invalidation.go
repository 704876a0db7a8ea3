package skills

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// invalidationChannel is the pub/sub channel every lavisd process sharing
// a skills directory subscribes to, so a Create/Update/Delete on one
// process triggers an immediate Reload on the others instead of waiting
// for the next hot-reload tick. Grounded on redis_cache.go's invalidation
// fan-out, adapted from per-tenant cache keys to a single shared
// skills-directory topic.
const invalidationChannel = "lavis:skills:invalidate"

// Invalidator broadcasts and receives skill-set-changed notifications
// across processes via Redis pub/sub. A nil *Invalidator (no Redis
// configured) is valid and simply disables cross-process invalidation;
// each process still hot-reloads on its own interval.
type Invalidator struct {
	client *redis.Client
	loader *Loader
}

// NewInvalidator connects to addr and returns an Invalidator wired to
// loader. addr == "" returns (nil, nil): cross-process invalidation is an
// optional enhancement, not a hard dependency.
func NewInvalidator(addr string, loader *Loader) (*Invalidator, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &Invalidator{client: client, loader: loader}, nil
}

// Publish notifies every subscribed process that the skill set changed.
// Call after Create/Update/Delete.
func (inv *Invalidator) Publish(ctx context.Context) error {
	if inv == nil {
		return nil
	}
	if err := inv.client.Publish(ctx, invalidationChannel, "reload").Err(); err != nil {
		return fmt.Errorf("skills: publishing invalidation: %w", err)
	}
	return nil
}

// Listen blocks, reloading the Loader on every invalidation message,
// until ctx is canceled. Run it in its own goroutine.
func (inv *Invalidator) Listen(ctx context.Context) {
	if inv == nil {
		return
	}
	sub := inv.client.Subscribe(ctx, invalidationChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := inv.loader.Reload(ctx); err != nil {
				log.Warn().Err(err).Msg("skills: invalidation-triggered reload")
			}
		}
	}
}

// Close releases the underlying Redis connection.
func (inv *Invalidator) Close() error {
	if inv == nil {
		return nil
	}
	return inv.client.Close()
}
