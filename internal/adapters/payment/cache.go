package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"ticketbooth/internal/domain"
)

// Config is the snapshot of gateway settings the cache builds adapters
// from.
type Config struct {
	// Active names the gateway used for new checkouts.
	Active string
	Stripe StripeOptions
	Square SquareOptions
}

// Cache resolves gateway adapters and reuses them across calls. Each entry
// is keyed by a fingerprint of the credentials it was built from, so a
// credential change produces a fresh client on the next lookup instead of
// silently using stale keys. Invalidate drops everything.
type Cache struct {
	mu      sync.Mutex
	source  func() Config
	entries map[string]cacheEntry
}

type cacheEntry struct {
	fingerprint string
	provider    domain.PaymentProvider
}

// NewCache returns a Cache reading gateway settings from source on every
// lookup.
func NewCache(source func() Config) *Cache {
	return &Cache{
		source:  source,
		entries: make(map[string]cacheEntry),
	}
}

// Active returns the configured gateway for new checkouts.
func (c *Cache) Active() (domain.PaymentProvider, error) {
	return c.ByName(c.source().Active)
}

// ByName returns the named gateway, building it if absent or if its
// credentials changed since it was cached.
func (c *Cache) ByName(name string) (domain.PaymentProvider, error) {
	cfg := c.source()
	fp, err := fingerprint(name, cfg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[name]; ok && entry.fingerprint == fp {
		return entry.provider, nil
	}

	var provider domain.PaymentProvider
	switch name {
	case "stripe":
		provider = NewStripe(cfg.Stripe)
	case "square":
		provider = NewSquare(cfg.Square)
	default:
		return nil, fmt.Errorf("unknown payment provider %q", name)
	}
	c.entries[name] = cacheEntry{fingerprint: fp, provider: provider}
	return provider, nil
}

// Invalidate drops all cached adapters.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func fingerprint(name string, cfg Config) (string, error) {
	h := sha256.New()
	switch name {
	case "stripe":
		fmt.Fprint(h, "stripe\x00", cfg.Stripe.SecretKey, "\x00", cfg.Stripe.WebhookSecret)
	case "square":
		fmt.Fprint(h, "square\x00", cfg.Square.AccessToken, "\x00", cfg.Square.LocationID,
			"\x00", cfg.Square.WebhookSecret, "\x00", cfg.Square.NotificationURL,
			"\x00", strconv.FormatBool(cfg.Square.Sandbox))
	default:
		return "", fmt.Errorf("unknown payment provider %q", name)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
