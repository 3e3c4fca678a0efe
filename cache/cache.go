// Package cache implements the three-tier content-addressed cache: asset
// enrichment results (L1), retrieval results (L2), and writer output (L3).
// Each tier derives its own key from its inputs via ContentHash and stores
// through a shared FileStore; invalidation cascades downward only.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ErrMiss is returned by Get when no live entry exists for a key (expired
// or never written). It is a recoverable signal, not an error callers need
// to log.
var ErrMiss = errors.New("cache: miss")

// Tier is the contract every cache tier satisfies. Implementations are
// single-writer per key (last write wins) and safe for concurrent reads.
type Tier interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte, ttl time.Duration) error
	Invalidate(scope string) error
}

// ContentHash is the single deterministic hashing helper used by every
// tier and by the writer's L3 semantic hash: the same inputs, in the same
// order, always produce the same key (testable property 6).
func ContentHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0}) // separator so ("ab","c") != ("a","bc")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TierName identifies a cache tier for Cascade and the refresh control
// surface.
type TierName string

const (
	TierL1Assets  TierName = "L1"
	TierL2Retrieval TierName = "L2"
	TierL3Writer  TierName = "L3"
)

// Cascade returns the tiers that an invalidation of `tier` must also
// invalidate, downward only: L1 cascades to nothing, L2 cascades to L1, L3
// cascades to L1 and L2. Upward cascade (a narrower tier invalidating a
// broader one) is never implicit — it is reachable only through the
// explicit --refresh=<tier|all> control surface via RefreshAll.
func Cascade(tier TierName) []TierName {
	switch tier {
	case TierL1Assets:
		return nil
	case TierL2Retrieval:
		return []TierName{TierL1Assets}
	case TierL3Writer:
		return []TierName{TierL1Assets, TierL2Retrieval}
	default:
		return nil
	}
}

// RefreshScope enumerates the values accepted by the --refresh control.
type RefreshScope string

const (
	RefreshNone        RefreshScope = "none"
	RefreshWriter      RefreshScope = "writer"
	RefreshRetrieval   RefreshScope = "retrieval"
	RefreshEnrichment  RefreshScope = "enrichment"
	RefreshAll         RefreshScope = "all"
)

// scopeTier maps a refresh-control value to the tier it names, when it
// names a single tier directly.
var scopeTier = map[RefreshScope]TierName{
	RefreshWriter:     TierL3Writer,
	RefreshRetrieval:  TierL2Retrieval,
	RefreshEnrichment: TierL1Assets,
}

// Refresh applies a --refresh scope against the three tiers, invalidating
// the named tier and cascading downward per Cascade, or every tier when
// scope is RefreshAll. RefreshNone is a no-op.
func Refresh(scope RefreshScope, l1, l2, l3 Tier) error {
	switch scope {
	case RefreshNone, "":
		return nil
	case RefreshAll:
		if err := l1.Invalidate("*"); err != nil {
			return err
		}
		if err := l2.Invalidate("*"); err != nil {
			return err
		}
		return l3.Invalidate("*")
	default:
		tier, ok := scopeTier[scope]
		if !ok {
			return errInvalidScope(scope)
		}
		return invalidateCascading(tier, l1, l2, l3)
	}
}

func invalidateCascading(tier TierName, l1, l2, l3 Tier) error {
	tiers := map[TierName]Tier{TierL1Assets: l1, TierL2Retrieval: l2, TierL3Writer: l3}
	toInvalidate := append([]TierName{tier}, Cascade(tier)...)
	for _, t := range toInvalidate {
		if c, ok := tiers[t]; ok {
			if err := c.Invalidate("*"); err != nil {
				return err
			}
		}
	}
	return nil
}

func errInvalidScope(scope RefreshScope) error {
	return errors.New("cache: invalid refresh scope: " + string(scope))
}

// sanitizeKey sanitizes a key for use as a filename component; ContentHash
// output is already hex so this only matters for test-authored keys.
func sanitizeKey(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}
