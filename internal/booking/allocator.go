package booking

import (
	"context"
	"fmt"

	"ms-booking/internal/utils"
)

const defaultMaxReferenceAttempts = 10

// Allocator draws candidate references until one is unused.
// Exists is best effort; the unique index on the reference column is the final authority.
type Allocator struct {
	Generate    func() (string, error)
	Exists      func(ctx context.Context, ref string) (bool, error)
	MaxAttempts int
}

func (a Allocator) Allocate(ctx context.Context) (string, error) {
	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxReferenceAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := a.Generate()
		if err != nil {
			return "", fmt.Errorf("generate ticket reference: %w", err)
		}
		exists, err := a.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check ticket reference %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %d candidates collided", ErrAllocationExhausted, attempts)
}

// ReferenceGenerator returns a generator of prefixed random alphanumeric references.
func ReferenceGenerator(prefix string, length int) func() (string, error) {
	return func() (string, error) {
		return utils.GenerateReference(prefix, length)
	}
}
