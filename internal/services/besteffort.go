package services

import (
	"context"
	"log"
	"time"
)

// attempt runs fn as a side task bounded by timeout. Its outcome is logged and never
// returned. Cancellation of ctx does not cut fn short.
func attempt(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			log.Printf("⚠️ %s failed (ignored): %v", name, err)
		}
	case <-ctx.Done():
		log.Printf("⚠️ %s timed out after %s (ignored)", name, timeout)
	}
}
