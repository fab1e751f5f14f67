// Package auth implements the Authentication Service: a nonce-challenge,
// signature-verify protocol that proves control of a wallet address and
// hands back a bearer session token.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alephdeploy/control-plane/internal/apierr"
	"github.com/alephdeploy/control-plane/internal/models"
)

var addressPattern = regexp.MustCompile(`^0x[a-f0-9]{40}$`)

// Service is the Authentication Service. Nonce and session maps each have
// their own mutex with opportunistic eviction on access, per the
// concurrency model this component follows.
type Service struct {
	nonceTTL   time.Duration
	sessionTTL time.Duration

	nonceMu sync.Mutex
	nonces  map[string]models.AuthNonce // address -> nonce

	sessionMu sync.Mutex
	sessions  map[string]models.Session // token -> session
}

func NewService(nonceTTL, sessionTTL time.Duration) *Service {
	return &Service{
		nonceTTL:   nonceTTL,
		sessionTTL: sessionTTL,
		nonces:     make(map[string]models.AuthNonce),
		sessions:   make(map[string]models.Session),
	}
}

// NormalizeAddress lowercases and validates an address against the hex
// pattern the protocol requires.
func NormalizeAddress(address string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(address))
	if !addressPattern.MatchString(lower) {
		return "", apierr.Validation("invalid wallet address")
	}
	return lower, nil
}

// Challenge issues a fresh nonce for address and returns it along with
// the canonical message the caller must sign.
func (s *Service) Challenge(address string) (nonce string, message string, err error) {
	address, err = NormalizeAddress(address)
	if err != nil {
		return "", "", err
	}

	nonce, err = randomHex(16)
	if err != nil {
		return "", "", fmt.Errorf("auth: generate nonce: %w", err)
	}

	s.nonceMu.Lock()
	s.evictExpiredNoncesLocked()
	s.nonces[address] = models.AuthNonce{Address: address, Nonce: nonce, CreatedAt: time.Now()}
	s.nonceMu.Unlock()

	return nonce, CanonicalMessage(nonce, address), nil
}

// CanonicalMessage builds the exact string the client must sign.
func CanonicalMessage(nonce, address string) string {
	return fmt.Sprintf("Sign this message to authenticate with Aleph Marketplace.\n\nNonce: %s\nAddress: %s", nonce, address)
}

// Verify checks a signed nonce and, on success, mints a session token.
func (s *Service) Verify(address, nonce, signatureHex string) (token string, expiresAt time.Time, err error) {
	address, err = NormalizeAddress(address)
	if err != nil {
		return "", time.Time{}, err
	}

	s.nonceMu.Lock()
	s.evictExpiredNoncesLocked()
	stored, ok := s.nonces[address]
	s.nonceMu.Unlock()

	if !ok || stored.Nonce != nonce {
		return "", time.Time{}, apierr.Validation("invalid or expired nonce")
	}
	if time.Since(stored.CreatedAt) > s.nonceTTL {
		s.nonceMu.Lock()
		delete(s.nonces, address)
		s.nonceMu.Unlock()
		return "", time.Time{}, apierr.Validation("invalid or expired nonce")
	}

	message := CanonicalMessage(nonce, address)
	recovered, err := RecoverAddress(message, signatureHex)
	if err != nil || recovered != address {
		return "", time.Time{}, &apierr.Kind{Sentinel: apierr.ErrUnauthorized, Reason: "invalid or expired"}
	}

	// Nonce consumed: exactly one successful verify per nonce.
	s.nonceMu.Lock()
	delete(s.nonces, address)
	s.nonceMu.Unlock()

	token, err = randomHex(32)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: generate token: %w", err)
	}
	expiresAt = time.Now().Add(s.sessionTTL)

	s.sessionMu.Lock()
	s.evictExpiredSessionsLocked()
	s.sessions[token] = models.Session{Token: token, Address: address, ExpiresAt: expiresAt}
	s.sessionMu.Unlock()

	return token, expiresAt, nil
}

// Session returns the session bound to token, if present and unexpired.
func (s *Service) Session(token string) (models.Session, bool) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	s.evictExpiredSessionsLocked()
	sess, ok := s.sessions[token]
	if !ok {
		return models.Session{}, false
	}
	if time.Now().After(sess.ExpiresAt) {
		delete(s.sessions, token)
		return models.Session{}, false
	}
	return sess, true
}

// Logout removes the session for token, if present. Always succeeds.
func (s *Service) Logout(token string) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	delete(s.sessions, token)
}

// Sweep evicts every expired nonce and session. It exists for a periodic
// scheduled sweep in addition to the opportunistic eviction every other
// method already performs on access.
func (s *Service) Sweep() {
	s.nonceMu.Lock()
	s.evictExpiredNoncesLocked()
	s.nonceMu.Unlock()

	s.sessionMu.Lock()
	s.evictExpiredSessionsLocked()
	s.sessionMu.Unlock()
}

func (s *Service) evictExpiredNoncesLocked() {
	now := time.Now()
	for addr, n := range s.nonces {
		if now.Sub(n.CreatedAt) > s.nonceTTL {
			delete(s.nonces, addr)
		}
	}
}

func (s *Service) evictExpiredSessionsLocked() {
	now := time.Now()
	for tok, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, tok)
		}
	}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RecoverAddress recovers the signer's lowercase hex address from a
// personal-sign signature over message. Returns an error — never a
// silent pass-through — if the signature bytes can't be parsed.
func RecoverAddress(message, signatureHex string) (string, error) {
	sig, err := decodeSignature(signatureHex)
	if err != nil {
		return "", err
	}

	hash := personalSignHash(message)

	// go-ethereum expects the recovery id in the last byte as 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] != 0 && sig[64] != 1 {
		return "", fmt.Errorf("auth: invalid recovery id")
	}

	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("auth: recover public key: %w", err)
	}

	return strings.ToLower(crypto.PubkeyToAddress(*pubKey).Hex()), nil
}

func decodeSignature(signatureHex string) ([]byte, error) {
	trimmed := strings.TrimPrefix(signatureHex, "0x")
	sig, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("auth: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("auth: signature must be 65 bytes, got %d", len(sig))
	}
	return sig, nil
}

func personalSignHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}
