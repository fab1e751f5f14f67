package handlers

import (
	"crypto/ecdsa"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alephdeploy/control-plane/internal/auth"
)

func TestSessionAlwaysReturns200(t *testing.T) {
	svc := auth.NewService(5*time.Minute, time.Hour)
	h := NewAuthHandler(svc)

	// No/invalid token: still 200, authenticated: false, never a 401.
	w := httptest.NewRecorder()
	c := newGinContext(w, http.MethodGet, "/api/auth/session", nil)
	c.Request.Header.Set("Authorization", "Bearer not-a-real-token")
	h.Session(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for invalid session, got %d", w.Code)
	}
	body := decodeEnvelope(t, w)
	data, _ := body["data"].(map[string]interface{})
	if authenticated, _ := data["authenticated"].(bool); authenticated {
		t.Fatalf("expected authenticated: false, got %#v", data)
	}

	// Valid token: 200, authenticated: true, address echoed back.
	privKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	address := strings.ToLower(crypto.PubkeyToAddress(privKey.PublicKey).Hex())

	nonce, message, err := svc.Challenge(address)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}

	signature := signPersonalMessage(t, privKey, message)
	token, _, err := svc.Verify(address, nonce, signature)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	w2 := httptest.NewRecorder()
	c2 := newGinContext(w2, http.MethodGet, "/api/auth/session", nil)
	c2.Request.Header.Set("Authorization", "Bearer "+token)
	h.Session(c2)

	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid session, got %d", w2.Code)
	}
	body2 := decodeEnvelope(t, w2)
	data2, _ := body2["data"].(map[string]interface{})
	if authenticated, _ := data2["authenticated"].(bool); !authenticated {
		t.Fatalf("expected authenticated: true, got %#v", data2)
	}
	if data2["address"] != address {
		t.Fatalf("expected address %q, got %#v", address, data2["address"])
	}
}

func signPersonalMessage(t *testing.T, privKey *ecdsa.PrivateKey, message string) string {
	t.Helper()
	prefixed := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message)) + message
	hash := crypto.Keccak256([]byte(prefixed))
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return hex.EncodeToString(sig)
}
