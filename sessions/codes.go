package sessions

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
)

const (
	// codes are 6-digit decimal strings with a non-zero leading digit
	codeMin  = 100000
	codeSpan = 900000

	// how many candidate codes to try before giving up
	maxAllocateAttempts = 5
)

// every candidate code collided with a live session
var ErrCodeSpaceExhausted = errors.New("could not allocate a unique session code")

// Generator produces session codes and resolves collisions against the store.
// Uniqueness under concurrent allocation relies on the store's atomic
// insert-if-absent Create, not on a separate existence check.
type Generator struct {
	store Store
}

// creates a code generator backed by the given store
func NewGenerator(store Store) *Generator {
	return &Generator{store: store}
}

// reserves a fresh code and creates the session with creatorID in the first
// slot. Returns ErrCodeSpaceExhausted when every attempt collided.
func (g *Generator) Allocate(ctx context.Context, creatorID string) (*Session, error) {
	for range maxAllocateAttempts {
		code, err := randomCode()
		if err != nil {
			return nil, err
		}

		session, err := g.store.Create(ctx, code, creatorID)

		if errors.Is(err, ErrAlreadyExists) {
			continue
		}

		if err != nil {
			return nil, err
		}

		return session, nil
	}

	return nil, ErrCodeSpaceExhausted
}

// returns a uniformly random code in [100000, 999999]
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("failed to generate session code: %w", err)
	}

	return strconv.FormatInt(codeMin+n.Int64(), 10), nil
}
