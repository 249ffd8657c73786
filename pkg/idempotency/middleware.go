package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

const HeaderKey = "Idempotency-Key"

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// Seen records key and reports whether it had been recorded before.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, inFlight, s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// Done reports whether key has been recorded, without recording it.
func (s *Store) Done(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records key once the work it guards has been applied.
func (s *Store) Mark(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, key, "1", s.ttl).Err()
}

// Forget removes key so a failed request can be retried with the same key.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

const (
	// HeaderReplayed is set on responses served from a stored result.
	HeaderReplayed = "Idempotent-Replayed"
	inFlight       = "1"
)

// replayHeaders are the response headers kept with a stored result.
var replayHeaders = []string{"Content-Type", "Location"}

type storedResponse struct {
	Status int               `json:"status"`
	Header map[string]string `json:"header,omitempty"`
	Body   []byte            `json:"body,omitempty"`
}

// Middleware makes a route safe to retry with the same Idempotency-Key. The
// first successful response is stored under the key and replayed to later
// requests; a request that arrives while the first one is still running gets
// onDuplicate. Keys of requests that ended with a 4xx/5xx status are
// forgotten. Requests without the header, and requests arriving while redis
// is unreachable, pass through.
func (s *Store) Middleware(log *slog.Logger, onDuplicate http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := r.Header.Get(HeaderKey)
			if value == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := fmt.Sprintf("idem:http:%s:%s:%s", r.Method, r.URL.Path, value)
			seen, err := s.Seen(r.Context(), key)
			if err != nil {
				log.Error("idempotency check failed", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				s.replay(log, key, w, r, onDuplicate)
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			ctx := context.WithoutCancel(r.Context())
			if ww.Status() >= http.StatusBadRequest {
				if err := s.Forget(ctx, key); err != nil {
					log.Error("idempotency forget failed", "key", key, "err", err)
				}
				return
			}
			if err := s.store(ctx, key, ww, body.Bytes()); err != nil {
				log.Error("idempotency store failed", "key", key, "err", err)
			}
		})
	}
}

func (s *Store) store(ctx context.Context, key string, w http.ResponseWriter, body []byte) error {
	status := http.StatusOK
	if ww, ok := w.(middleware.WrapResponseWriter); ok && ww.Status() != 0 {
		status = ww.Status()
	}
	res := storedResponse{Status: status, Header: map[string]string{}, Body: body}
	for _, h := range replayHeaders {
		if v := w.Header().Get(h); v != "" {
			res.Header[h] = v
		}
	}
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, b, s.ttl).Err()
}

func (s *Store) replay(log *slog.Logger, key string, w http.ResponseWriter, r *http.Request, onDuplicate http.HandlerFunc) {
	raw, err := s.rdb.Get(r.Context(), key).Bytes()
	if err != nil || string(raw) == inFlight {
		if err != nil && !errors.Is(err, redis.Nil) {
			log.Error("idempotency lookup failed", "key", key, "err", err)
		}
		log.Info("duplicate request rejected", "key", key)
		onDuplicate(w, r)
		return
	}
	var res storedResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Error("stored response unreadable", "key", key, "err", err)
		onDuplicate(w, r)
		return
	}
	for h, v := range res.Header {
		w.Header().Set(h, v)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(res.Status)
	_, _ = w.Write(res.Body)
	log.Info("duplicate request replayed", "key", key)
}
