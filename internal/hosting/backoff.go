package hosting

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Backoff returns base doubled once per prior attempt (attempt is 1-based),
// capped at maxDelay. A non-positive maxDelay means no cap.
func Backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for range max(attempt, 1) - 1 {
		if maxDelay > 0 && delay >= maxDelay {
			break
		}
		delay *= 2
	}
	if maxDelay > 0 {
		delay = min(delay, maxDelay)
	}
	return delay
}

// Sleep waits for delay or until ctx is done. A non-nil sleeper replaces the
// real wait.
func Sleep(ctx context.Context, sleeper func(time.Duration), delay time.Duration) error {
	if err := ctx.Err(); err != nil || delay <= 0 {
		return err
	}
	if sleeper != nil {
		sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// serverDelay reads how long the server asked us to wait: Retry-After
// (seconds or HTTP date) first, then the rate-limit reset epoch when the
// quota is exhausted.
func serverDelay(h http.Header, now time.Time) time.Duration {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(max(secs, 0)) * time.Second
		}
		if when, err := http.ParseTime(v); err == nil {
			return max(when.Sub(now), 0)
		}
	}
	if h.Get("X-RateLimit-Remaining") == "0" {
		if epoch, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			return max(time.Unix(epoch, 0).Sub(now), 0)
		}
	}
	return 0
}
