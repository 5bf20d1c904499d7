package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/botdesk/botdesk/internal/api/response"
	"github.com/botdesk/botdesk/internal/metrics"
)

// clientKey identifies the caller by remote IP.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		host = r.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func rejectRateLimited(w http.ResponseWriter, r *http.Request, retryAfter int, limiter string) {
	metrics.RateLimitRejected.WithLabelValues(limiter).Inc()
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	response.Err(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", GetRequestID(r.Context()))
}

// RateLimit is a per-IP token bucket kept in process memory. It protects
// the credential endpoints when no Redis is configured.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	var limiters sync.Map // map[string]*rate.Limiter

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			v, _ := limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(rps), burst))

			if !v.(*rate.Limiter).Allow() {
				rejectRateLimited(w, r, 1, "memory")
				return
			}
			metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// RedisRateLimit is a fixed-window limiter shared by every server process:
// INCR a per-window key and compare against floor(rps*window)+burst.
// A nil client falls back to the in-memory limiter.
func RedisRateLimit(client *redis.Client, rps float64, burst int, window time.Duration) func(http.Handler) http.Handler {
	if client == nil {
		return RateLimit(rps, burst)
	}
	windowSeconds := int(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	allowed := int64(rps*float64(windowSeconds)) + int64(burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := time.Now().Unix() / int64(windowSeconds)
			redisKey := fmt.Sprintf("rl:%s:%d", clientKey(r), bucket)

			cnt, err := client.Incr(r.Context(), redisKey).Result()
			if err != nil {
				slog.Error("rate limit check failed", "error", err)
				response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Rate limit check failed", GetRequestID(r.Context()))
				return
			}
			if cnt == 1 {
				_ = client.Expire(r.Context(), redisKey, time.Duration(windowSeconds+1)*time.Second).Err()
			}
			if cnt > allowed {
				rejectRateLimited(w, r, windowSeconds, "redis")
				return
			}
			metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
			next.ServeHTTP(w, r)
		})
	}
}
