package auth

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestChallengeVerifyRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	address := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	svc := NewService(300*time.Second, 86400*time.Second)
	nonce, message, err := svc.Challenge(address)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	if !strings.Contains(message, nonce) || !strings.Contains(message, address) {
		t.Fatalf("message missing nonce/address: %s", message)
	}

	sig, err := crypto.Sign(personalSignHash(message), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	token, expiresAt, err := svc.Verify(address, nonce, hex.EncodeToString(sig))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
	if d := expiresAt.Sub(time.Now()); d < 86300*time.Second || d > 86400*time.Second {
		t.Fatalf("unexpected expiry delta: %v", d)
	}

	sess, ok := svc.Session(token)
	if !ok || sess.Address != address {
		t.Fatalf("Session lookup failed: %+v ok=%v", sess, ok)
	}
}

func TestVerifyRejectsNonceReplay(t *testing.T) {
	key, _ := crypto.GenerateKey()
	address := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	svc := NewService(300*time.Second, 86400*time.Second)
	nonce, message, _ := svc.Challenge(address)
	sig, _ := crypto.Sign(personalSignHash(message), key)
	sigHex := hex.EncodeToString(sig)

	if _, _, err := svc.Verify(address, nonce, sigHex); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, _, err := svc.Verify(address, nonce, sigHex); err == nil {
		t.Fatalf("expected replay to be rejected")
	}
}

func TestVerifyRejectsMismatchedSigner(t *testing.T) {
	signerKey, _ := crypto.GenerateKey()
	claimedKey, _ := crypto.GenerateKey()
	claimedAddress := strings.ToLower(crypto.PubkeyToAddress(claimedKey.PublicKey).Hex())

	svc := NewService(300*time.Second, 86400*time.Second)
	nonce, message, _ := svc.Challenge(claimedAddress)
	sig, _ := crypto.Sign(personalSignHash(message), signerKey)

	if _, _, err := svc.Verify(claimedAddress, nonce, hex.EncodeToString(sig)); err == nil {
		t.Fatalf("expected mismatched signer to be rejected")
	}
}

func TestLogoutRemovesSession(t *testing.T) {
	key, _ := crypto.GenerateKey()
	address := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	svc := NewService(300*time.Second, 86400*time.Second)
	nonce, message, _ := svc.Challenge(address)
	sig, _ := crypto.Sign(personalSignHash(message), key)
	token, _, _ := svc.Verify(address, nonce, hex.EncodeToString(sig))

	svc.Logout(token)
	if _, ok := svc.Session(token); ok {
		t.Fatalf("expected session gone after logout")
	}
}

func TestNormalizeAddressRejectsInvalid(t *testing.T) {
	if _, err := NormalizeAddress("not-an-address"); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := NormalizeAddress("0x" + strings.Repeat("a", 40)); err != nil {
		t.Fatalf("expected valid address to pass: %v", err)
	}
}
