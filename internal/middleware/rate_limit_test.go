package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bookbay-storefront/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedHandler(rl *RateLimiter) http.Handler {
	return rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiter_BasicFunctionality(t *testing.T) {
	rl := NewRateLimiter(2, 2)
	defer rl.Stop()
	h := limitedHandler(rl)

	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:1234").Code)
	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:1234").Code)

	rr := hit(h, "192.168.1.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	testutil.AssertJSONError(t, rr, http.StatusTooManyRequests, "Rate limit exceeded")
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestRateLimiter_PerIPLimiting(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()
	h := limitedHandler(rl)

	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:1234").Code)
	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.2:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.168.1.1:1234").Code)
}

func TestRateLimiter_PortsShareTheHostLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()
	h := limitedHandler(rl)

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:2222").Code)
}

func TestRateLimiter_CleanupDropsIdleLimiters(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		rl.getLimiter(fmt.Sprintf("10.0.0.%d", i))
	}
	require.Len(t, rl.limiters, 100)

	rl.cleanup(time.Now().Add(limiterTTL + time.Minute))

	assert.Empty(t, rl.limiters)
}

func TestRateLimiter_CleanupKeepsRecent(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	defer rl.Stop()

	rl.getLimiter("fresh")

	rl.cleanup(time.Now())

	assert.Len(t, rl.limiters, 1)
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	defer rl.Stop()

	base := time.Now()
	for i := 0; i < maxLimiters+100; i++ {
		key := fmt.Sprintf("key-%d", i)
		rl.getLimiter(key)
		rl.limiters[key].lastAccess = base.Add(time.Duration(i) * time.Millisecond)
	}

	rl.cleanup(base)

	assert.LessOrEqual(t, len(rl.limiters), maxLimiters)
	_, newestKept := rl.limiters[fmt.Sprintf("key-%d", maxLimiters+99)]
	_, oldestKept := rl.limiters["key-0"]
	assert.True(t, newestKept)
	assert.False(t, oldestKept)
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(100, 100)
	defer rl.Stop()
	h := limitedHandler(rl)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				hit(h, fmt.Sprintf("192.168.1.%d:1234", id))
			}
		}(i)
	}
	wg.Wait()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.limiters, 20)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	assert.NotPanics(t, func() {
		rl.Stop()
		rl.Stop()
	})
}
