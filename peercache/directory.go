package peercache

import (
	"context"
	"fmt"
	"time"

	"github.com/cyberinferno/go-hfsco/bdaddr"
	"github.com/cyberinferno/go-hfsco/logger"
)

// DefaultVersionTTL is how long a discovered profile version is trusted.
const DefaultVersionTTL = 24 * time.Hour

const keyPrefix = "hfp:peer:"

// VersionKey returns the cache key holding a peer's Hands-Free profile version.
func VersionKey(peer bdaddr.Address) string {
	return keyPrefix + peer.String() + ":version"
}

// Discoverer looks up a peer's Hands-Free profile version, typically through
// service discovery.
type Discoverer func(ctx context.Context, peer bdaddr.Address) (uint16, error)

// Directory resolves peer capabilities through a Store.
type Directory struct {
	store    Store[uint16]
	discover Discoverer
	ttl      time.Duration
	log      logger.Logger
}

// NewDirectory creates a directory.
//
// Parameters:
//   - store: Backing cache
//   - discover: Called on a cache miss; nil means every miss fails
//   - ttl: Lifetime of a cached version; zero means DefaultVersionTTL
//   - log: Logger; nil discards entries
//
// Returns:
//   - A new *Directory
func NewDirectory(store Store[uint16], discover Discoverer, ttl time.Duration, log logger.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultVersionTTL
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Directory{
		store:    store,
		discover: discover,
		ttl:      ttl,
		log:      log.With(logger.Field{Key: "component", Value: "peercache"}),
	}
}

// ProfileVersion returns the peer's Hands-Free profile version, running
// discovery only when the cache has no entry.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - peer: Remote device
//
// Returns:
//   - The profile version, e.g. 0x0107
//   - An error if both the cache and discovery fail
func (d *Directory) ProfileVersion(ctx context.Context, peer bdaddr.Address) (uint16, error) {
	return d.store.Load(ctx, VersionKey(peer), d.ttl, func(ctx context.Context) (uint16, error) {
		if d.discover == nil {
			return 0, fmt.Errorf("peercache: no version cached for %s", peer)
		}

		v, err := d.discover(ctx, peer)
		if err != nil {
			return 0, fmt.Errorf("peercache: discover %s: %w", peer, err)
		}

		d.log.Debug("profile version discovered",
			logger.Field{Key: "peer", Value: peer.String()},
			logger.Field{Key: "version", Value: fmt.Sprintf("0x%04x", v)},
		)
		return v, nil
	})
}

// Remember records a version learned elsewhere, e.g. from the peer's
// signaling exchange.
func (d *Directory) Remember(ctx context.Context, peer bdaddr.Address, version uint16) error {
	return d.store.Put(ctx, VersionKey(peer), version, d.ttl)
}

// Forget drops everything cached about peer.
func (d *Directory) Forget(ctx context.Context, peer bdaddr.Address) error {
	_, err := d.store.DeleteByPrefix(ctx, keyPrefix+peer.String()+":")
	return err
}
