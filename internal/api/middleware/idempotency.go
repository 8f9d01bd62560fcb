package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	processingMarker = "PROCESSING"
	lockTTL          = 10 * time.Second
	resultTTL        = 24 * time.Hour
)

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func IdempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Only successful responses are stored; a failed request releases the key so
// the client may retry. Requests without the header, and all requests while
// redis is unavailable, pass straight through.
func Idempotency(redisClient redis.Cmdable, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" || redisClient == nil {
				next.ServeHTTP(w, r)
				return
			}

			idemKey := IdempotencyKey(key)
			ctx := r.Context()

			val, err := redisClient.Get(ctx, idemKey).Result()
			switch {
			case err == nil:
				replay(w, val)
				return
			case !errors.Is(err, redis.Nil):
				logger.Warn("idempotency lookup failed", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			acquired, err := redisClient.SetNX(ctx, idemKey, processingMarker, lockTTL).Result()
			if err != nil || !acquired {
				writeConflict(w)
				return
			}

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status < 200 || rec.status >= 300 {
				if err := redisClient.Del(ctx, idemKey).Err(); err != nil {
					logger.Warn("failed to release idempotency key", "key", key, "error", err)
				}
				return
			}

			data, err := json.Marshal(storedResponse{Status: rec.status, Body: rec.body.Bytes()})
			if err == nil {
				err = redisClient.Set(ctx, idemKey, data, resultTTL).Err()
			}
			if err != nil {
				logger.Warn("failed to store idempotent response", "key", key, "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, val string) {
	if val == processingMarker {
		writeConflict(w)
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		writeConflict(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Idempotency-Hit", "true")
	w.WriteHeader(stored.Status)
	w.Write(stored.Body)
}

func writeConflict(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	w.Write([]byte(`{"error": "concurrent request"}`))
}
