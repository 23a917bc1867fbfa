package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// Capacity enforces a cloud's instance cap across concurrent attempts.
//
// The number of live pods is only known to the cluster, and a pod only shows
// up there once it has been created. Admitted attempts therefore hold a
// reservation until their pod exists (or they give up), and admission is
// serialized so two attempts can never both take the last slot.
type Capacity struct {
	mu       sync.Mutex
	limit    int
	reserved int
}

// NewCapacity returns a Capacity allowing limit live pods; 0 means unlimited.
func NewCapacity(limit int) *Capacity {
	return &Capacity{limit: limit}
}

// Admit counts live pods and reserves a slot if the cap allows it. The
// returned release function is idempotent.
func (c *Capacity) Admit(ctx context.Context, countLive func(context.Context) (int, error)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(ctx, countLive); err != nil {
		return nil, err
	}

	c.reserved++
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.reserved--
			c.mu.Unlock()
		})
	}, nil
}

// Check tells whether Admit would currently succeed, without reserving.
func (c *Capacity) Check(ctx context.Context, countLive func(context.Context) (int, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.check(ctx, countLive)
}

func (c *Capacity) check(ctx context.Context, countLive func(context.Context) (int, error)) error {
	if c.limit <= 0 {
		return nil
	}

	live, err := countLive(ctx)
	if err != nil {
		return fmt.Errorf("failed to count live pods: %w", err)
	}
	if live+c.reserved >= c.limit {
		return fmt.Errorf("%w: %d live, %d starting, cap is %d", ErrCapacityReached, live, c.reserved, c.limit)
	}
	return nil
}

// Reserved returns the number of admitted attempts whose pod does not exist yet.
func (c *Capacity) Reserved() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reserved
}
