package models

import "time"

// AuthNonce is a one-time challenge issued for a wallet address.
type AuthNonce struct {
	Address   string
	Nonce     string
	CreatedAt time.Time
}

// Session binds an opaque bearer token to a wallet address for the
// session window.
type Session struct {
	Token     string
	Address   string
	ExpiresAt time.Time
}
