package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"timeoff/internal/platform/kv"
	"timeoff/internal/transport/http/api"
)

const (
	maxIdempotencyKeyLength = 128
	// pendingLease bounds how long a crashed attempt keeps its key claimed.
	pendingLease = time.Minute
)

type idempotentResponse struct {
	Hash    string `json:"hash"`
	Pending bool   `json:"pending,omitempty"`
	Status  int    `json:"status,omitempty"`
	Body    string `json:"body,omitempty"`
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when an authenticated client
// retries a POST with the same Idempotency-Key and body. A reused key with
// a different body is a conflict. The key is claimed before the handler
// runs, so a concurrent retry gets 409 idempotency_in_progress instead of a
// second execution. Backend errors disable replay for that request only.
func Idempotency(store kv.Store, ttl, timeout time.Duration) func(http.Handler) http.Handler {
	lease := min(ttl, pendingLease)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			principal, ok := GetPrincipal(r.Context())
			if r.Method != http.MethodPost || key == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}
			reqID := GetRequestID(r.Context())
			if len(key) > maxIdempotencyKeyLength {
				api.Fail(w, http.StatusBadRequest, "invalid_idempotency_key", "idempotency key too long", reqID)
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := RequestHash(body)
			storeKey := "idem:" + principal.ID + ":" + r.URL.Path + ":" + key

			placeholder, _ := json.Marshal(idempotentResponse{Hash: hash, Pending: true})
			kctx, cancel := context.WithTimeout(r.Context(), timeout)
			claimed, err := store.SetNX(kctx, storeKey, string(placeholder), lease)
			if err == nil && !claimed {
				var raw string
				var found bool
				raw, found, err = store.Get(kctx, storeKey)
				if err == nil {
					cancel()
					replayStored(w, raw, found, hash, reqID)
					return
				}
			}
			cancel()
			if err != nil {
				slog.Warn("idempotency claim failed", "component", "idempotency", "err", err)
				next.ServeHTTP(w, r)
				return
			}

			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			kctx, cancel = context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
			defer cancel()
			if capture.status == 0 || capture.status >= 500 || !json.Valid(capture.buf.Bytes()) {
				if err := store.Delete(kctx, storeKey); err != nil {
					slog.Warn("idempotency release failed", "component", "idempotency", "err", err)
				}
				return
			}
			record, err := json.Marshal(idempotentResponse{Hash: hash, Status: capture.status, Body: capture.buf.String()})
			if err != nil {
				return
			}
			if err := store.Set(kctx, storeKey, string(record), ttl); err != nil {
				slog.Warn("idempotency save failed", "component", "idempotency", "err", err)
			}
		})
	}
}

// replayStored answers a request whose key was already claimed. A claim
// that vanished between SetNX and Get was released by a failed attempt and
// is reported as in progress so the client retries.
func replayStored(w http.ResponseWriter, raw string, found bool, hash, reqID string) {
	var stored idempotentResponse
	if found && json.Unmarshal([]byte(raw), &stored) == nil && stored.Hash != hash {
		api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different payload", reqID)
		return
	}
	if !found || stored.Pending || stored.Status == 0 {
		w.Header().Set("Retry-After", "1")
		api.Fail(w, http.StatusConflict, "idempotency_in_progress", "a request with this idempotency key is in progress", reqID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = io.WriteString(w, stored.Body)
}
