package ledgerd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketResponses = []byte("responses")

// ErrIdempotencyMiss is returned when no response is stored for a key.
var ErrIdempotencyMiss = errors.New("idempotency record not found")

// IdempotencyRecord stores the response produced for an idempotency key.
type IdempotencyRecord struct {
	StatusCode int       `json:"statusCode"`
	Body       []byte    `json:"body"`
	StoredAt   time.Time `json:"storedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// IdempotencyStore persists mutation responses in BoltDB so that retried
// requests replay the original outcome instead of mutating the ledger twice.
type IdempotencyStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// OpenIdempotencyStore opens (and migrates) the store at path.
func OpenIdempotencyStore(path string, ttl time.Duration) (*IdempotencyStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResponses)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now, inflight: make(map[string]struct{})}, nil
}

// Close releases the Bolt handle.
func (s *IdempotencyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Lookup returns the unexpired record stored for key.
func (s *IdempotencyStore) Lookup(key string) (IdempotencyRecord, error) {
	var record IdempotencyRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketResponses).Get([]byte(key))
		if raw == nil {
			return ErrIdempotencyMiss
		}
		return json.Unmarshal(raw, &record)
	})
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if !record.ExpiresAt.IsZero() && s.now().After(record.ExpiresAt) {
		return IdempotencyRecord{}, ErrIdempotencyMiss
	}
	return record, nil
}

// Save stores the response for key.
func (s *IdempotencyStore) Save(key string, status int, body []byte) error {
	now := s.now()
	encoded, err := json.Marshal(IdempotencyRecord{
		StatusCode: status,
		Body:       append([]byte(nil), body...),
		StoredAt:   now,
		ExpiresAt:  now.Add(s.ttl),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResponses).Put([]byte(key), encoded)
	})
}

// Prune deletes expired records and returns how many were removed.
func (s *IdempotencyStore) Prune() (int, error) {
	now := s.now()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketResponses)
		var stale [][]byte
		if err := bucket.ForEach(func(k, v []byte) error {
			var record IdempotencyRecord
			if err := json.Unmarshal(v, &record); err != nil || now.After(record.ExpiresAt) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func (s *IdempotencyStore) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *IdempotencyStore) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

// Middleware replays stored responses for requests carrying an
// Idempotency-Key header. Keys are scoped to the caller, method and path.
// Server errors are not stored so the request can be retried.
func (s *IdempotencyStore) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if s == nil || raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		caller := ""
		if principal, ok := PrincipalFrom(r.Context()); ok {
			caller = principal.Subject.Hex()
		}
		key := strings.Join([]string{caller, r.Method, r.URL.Path, raw}, "|")

		if record, err := s.Lookup(key); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replay", "true")
			w.WriteHeader(record.StatusCode)
			_, _ = w.Write(record.Body)
			return
		}
		if !s.acquire(key) {
			writeProblem(w, http.StatusConflict, "request_in_progress", "a request with this idempotency key is in progress")
			return
		}
		defer s.release(key)

		recorder := &bodyRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if recorder.status < http.StatusInternalServerError {
			_ = s.Save(key, recorder.status, recorder.buf.Bytes())
		}
	})
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *bodyRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}
