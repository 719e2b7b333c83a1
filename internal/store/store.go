// Package store holds all process-local gateway state behind a single mutex:
// SIWE nonces, sessions, sliding-window rate-limit buckets, TP arms, and the
// idempotency set. Every read returns a deep copy so callers can never
// mutate state outside the lock.
package store

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/opipolix/gateway/internal/domain"
)

// Store is safe for concurrent use by any number of goroutines.
type Store struct {
	mu sync.Mutex

	nonces      map[string]domain.NonceRecord
	sessions    map[string]domain.Session
	rateLimits  map[string][]time.Time
	tpArms      map[string]domain.TpArm
	idempotency map[string]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		nonces:      make(map[string]domain.NonceRecord),
		sessions:    make(map[string]domain.Session),
		rateLimits:  make(map[string][]time.Time),
		tpArms:      make(map[string]domain.TpArm),
		idempotency: make(map[string]struct{}),
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func randomURLSafe(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// CreateNonce mints a fresh SIWE nonce for address, replacing any pending one.
func (s *Store) CreateNonce(address, message string, ttl time.Duration) domain.NonceRecord {
	now := time.Now()
	rec := domain.NonceRecord{
		Address:   strings.ToLower(address),
		Nonce:     randomHex(16),
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.mu.Lock()
	s.nonces[rec.Address] = rec
	s.mu.Unlock()
	return rec
}

// ConsumeNonce validates and removes the pending nonce for address. Returns
// ok=false if no nonce is pending, it expired, or it doesn't match.
func (s *Store) ConsumeNonce(address, nonce string) (domain.NonceRecord, bool) {
	key := strings.ToLower(address)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found := s.nonces[key]
	if !found {
		return domain.NonceRecord{}, false
	}
	if time.Now().After(rec.ExpiresAt) {
		delete(s.nonces, key)
		return domain.NonceRecord{}, false
	}
	if rec.Nonce != nonce {
		return domain.NonceRecord{}, false
	}
	delete(s.nonces, key)
	return rec, true
}

// CreateSession mints a new session token bound to the given identity.
func (s *Store) CreateSession(eoaAddress string, creds domain.ClobCreds, ctx domain.TradingContext, ttl time.Duration) domain.Session {
	now := time.Now()
	sess := domain.Session{
		Token:          randomURLSafe(48),
		EOAAddress:     eoaAddress,
		ClobCreds:      creds,
		TradingContext: ctx,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()
	return sess
}

// GetSession returns the live session for token, evicting and reporting
// not-found if it has expired.
func (s *Store) GetSession(token string) (domain.Session, bool) {
	if token == "" {
		return domain.Session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, found := s.sessions[token]
	if !found {
		return domain.Session{}, false
	}
	if time.Now().After(sess.ExpiresAt) {
		delete(s.sessions, token)
		return domain.Session{}, false
	}
	return sess, true
}

// DeleteSession logs a session out.
func (s *Store) DeleteSession(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// AllowRateLimit implements a sliding-window limiter: true if the caller may
// proceed, having recorded this attempt; false if max_requests were already
// made within the trailing window.
func (s *Store) AllowRateLimit(key string, maxRequests int, window time.Duration) bool {
	now := time.Now()
	floor := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.rateLimits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if !ts.Before(floor) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= maxRequests {
		s.rateLimits[key] = kept
		return false
	}
	s.rateLimits[key] = append(kept, now)
	return true
}

// SaveTpArm inserts or overwrites an arm's full state.
func (s *Store) SaveTpArm(arm domain.TpArm) domain.TpArm {
	s.mu.Lock()
	s.tpArms[arm.ArmID] = arm.Clone()
	s.mu.Unlock()
	return arm
}

// GetTpArm returns a deep copy of the arm, or ok=false if unknown.
func (s *Store) GetTpArm(armID string) (domain.TpArm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arm, found := s.tpArms[armID]
	if !found {
		return domain.TpArm{}, false
	}
	return arm.Clone(), true
}

// UpdateTpArm applies mutate to the stored arm under the lock and returns
// the resulting copy. Returns ok=false if the arm no longer exists.
func (s *Store) UpdateTpArm(armID string, mutate func(*domain.TpArm)) (domain.TpArm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arm, found := s.tpArms[armID]
	if !found {
		return domain.TpArm{}, false
	}
	mutate(&arm)
	s.tpArms[armID] = arm
	return arm.Clone(), true
}

// AppendTpEvent records one audit-trail entry for an arm, a no-op if the arm
// is gone.
func (s *Store) AppendTpEvent(armID string, event domain.TpEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arm, found := s.tpArms[armID]
	if !found {
		return
	}
	arm.Events = append(arm.Events, event)
	s.tpArms[armID] = arm
}

// GetTpArmsForUser returns deep copies of every arm belonging to eoaAddress.
func (s *Store) GetTpArmsForUser(eoaAddress string) []domain.TpArm {
	target := strings.ToLower(eoaAddress)
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.TpArm
	for _, arm := range s.tpArms {
		if strings.ToLower(arm.EOAAddress) == target {
			out = append(out, arm.Clone())
		}
	}
	return out
}

// MarkIdempotent atomically claims key, returning true only the first time
// it is seen.
func (s *Store) MarkIdempotent(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.idempotency[key]; seen {
		return false
	}
	s.idempotency[key] = struct{}{}
	return true
}
