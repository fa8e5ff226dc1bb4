package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// WebhookDeduper tracks processed gateway webhook deliveries. The gateway
// redelivers events until it sees a 2xx, so the same charge event can arrive
// several times.
type WebhookDeduper interface {
	Seen(ctx context.Context, key string) (bool, error)
}

type redisWebhookDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (d *redisWebhookDeduper) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+":"+key, "1", d.ttl).Result()
	if err != nil {
		return false, err
	}
	// false => already exists => duplicate
	return !ok, nil
}

type memoryWebhookDeduper struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	nextGC time.Time
}

func newMemoryWebhookDeduper(ttl time.Duration) *memoryWebhookDeduper {
	now := time.Now()
	return &memoryWebhookDeduper{
		seen:   make(map[string]time.Time),
		ttl:    ttl,
		nextGC: now.Add(ttl),
	}
}

func (d *memoryWebhookDeduper) Seen(_ context.Context, key string) (bool, error) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[key]; ok && exp.After(now) {
		return true, nil
	}

	d.seen[key] = now.Add(d.ttl)
	if now.After(d.nextGC) {
		for k, exp := range d.seen {
			if exp.Before(now) {
				delete(d.seen, k)
			}
		}
		d.nextGC = now.Add(d.ttl)
	}

	return false, nil
}

// NewWebhookDeduper builds a Redis deduper and falls back to in-memory on failure.
func NewWebhookDeduper(addr, pass string, db int, ttl time.Duration) (WebhookDeduper, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if addr == "" {
		return newMemoryWebhookDeduper(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return newMemoryWebhookDeduper(ttl), err
	}

	return &redisWebhookDeduper{
		client: client,
		prefix: "gw:webhook",
		ttl:    ttl,
	}, nil
}

// GatewayWebhookDedup drops duplicate gateway webhook deliveries, keyed by
// event name plus transaction reference.
func GatewayWebhookDedup(deduper WebhookDeduper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if deduper == nil {
				return next(c)
			}

			req := c.Request()
			if req.Body == nil {
				return next(c)
			}

			rawBody, err := io.ReadAll(req.Body)
			if err != nil {
				return next(c)
			}
			req.Body = io.NopCloser(bytes.NewBuffer(rawBody))
			if len(rawBody) == 0 {
				return next(c)
			}

			var payload struct {
				Event string `json:"event"`
				Data  struct {
					Reference string `json:"reference"`
				} `json:"data"`
			}
			if err := json.Unmarshal(rawBody, &payload); err != nil || payload.Data.Reference == "" {
				return next(c)
			}

			isDuplicate, err := deduper.Seen(req.Context(), payload.Event+":"+payload.Data.Reference)
			if err != nil {
				return next(c)
			}
			if isDuplicate {
				// The gateway only needs a 2xx response to stop retries.
				return c.NoContent(http.StatusOK)
			}

			return next(c)
		}
	}
}
