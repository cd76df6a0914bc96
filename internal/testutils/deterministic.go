// Package testutils provides fakes and deterministic generators for promptrelay tests.
package testutils

import (
	"fmt"
	"sync"
)

// RequestIDSequence returns a generator of deterministic request IDs in the
// UUID layout: 00000001-0000-4000-8000-000000000001, 00000002-..., and so on.
func RequestIDSequence() func() string {
	var (
		mu      sync.Mutex
		counter uint64
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		counter++
		return fmt.Sprintf("%08x-0000-4000-8000-%012x", counter, counter)
	}
}
