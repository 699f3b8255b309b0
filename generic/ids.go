package generic

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// ID GENERATOR - Collision-checked identifiers with bounded retry
// =============================================================================

const (
	idLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	idDigits  = "0123456789"

	// DefaultIDAttempts bounds the collision retry loop.
	DefaultIDAttempts = 50
)

// ExistsFunc reports whether an identifier is already taken.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// IDGenerator produces account identifiers shaped like "KTR-4821".
//
// Candidates are drawn at random and checked with Exists. After MaxAttempts
// collisions the generator falls back to "fallback-<unix millis>" derived
// from the supplied clock, which is unique per millisecond and needs no
// lookup.
type IDGenerator struct {
	Rand        *rand.Rand
	MaxAttempts int
	Exists      ExistsFunc

	mu sync.Mutex // guards Rand
}

func NewIDGenerator(exists ExistsFunc) *IDGenerator {
	return &IDGenerator{
		Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		MaxAttempts: DefaultIDAttempts,
		Exists:      exists,
	}
}

// Next returns a free identifier. now only feeds the fallback.
func (g *IDGenerator) Next(ctx context.Context, now time.Time) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultIDAttempts
	}

	for i := 0; i < attempts; i++ {
		candidate := g.candidate()
		if g.Exists == nil {
			return candidate, nil
		}
		taken, err := g.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check id %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}

	fallback := fmt.Sprintf("fallback-%d", now.UnixMilli())
	if g.Exists != nil {
		taken, err := g.Exists(ctx, fallback)
		if err != nil {
			return "", fmt.Errorf("check id %s: %w", fallback, err)
		}
		if taken {
			return "", ErrIDExhausted
		}
	}
	return fallback, nil
}

func (g *IDGenerator) candidate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	for i := 0; i < 3; i++ {
		b.WriteByte(idLetters[g.Rand.Intn(len(idLetters))])
	}
	b.WriteByte('-')
	for i := 0; i < 4; i++ {
		b.WriteByte(idDigits[g.Rand.Intn(len(idDigits))])
	}
	return b.String()
}
