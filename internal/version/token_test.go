package version

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenStartsAtZero(t *testing.T) {
	var tok Token
	assert.Equal(t, int64(0), tok.Get())
	assert.Equal(t, int64(0), tok.Get(), "Get must not mutate")
}

func TestBumpIsMonotonic(t *testing.T) {
	var tok Token
	assert.Equal(t, int64(1), tok.Bump())
	assert.Equal(t, int64(2), tok.Bump())
	assert.Equal(t, int64(2), tok.Get())
}

func TestBumpUnderConcurrency(t *testing.T) {
	var tok Token
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Bump()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), tok.Get())
}
