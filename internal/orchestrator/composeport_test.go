package orchestrator

import "testing"

func TestResolveLocalPortPrefersOverride(t *testing.T) {
	compose := "services:\n  web:\n    ports:\n      - \"8080:80\"\n"
	if got := ResolveLocalPort(compose, 9999); got != 9999 {
		t.Fatalf("got %d, want override 9999", got)
	}
}

func TestResolveLocalPortPrefersNamedService(t *testing.T) {
	compose := "services:\n  db:\n    ports:\n      - \"5432:5432\"\n  web:\n    ports:\n      - \"8080:80\"\n"
	if got := ResolveLocalPort(compose, 0); got != 8080 {
		t.Fatalf("got %d, want 8080 from web service", got)
	}
}

func TestResolveLocalPortFallsBackToFirstMapping(t *testing.T) {
	compose := "services:\n  db:\n    ports:\n      - \"5432:5432\"\n"
	if got := ResolveLocalPort(compose, 0); got != 5432 {
		t.Fatalf("got %d, want 5432", got)
	}
}

func TestResolveLocalPortDefaultsTo80(t *testing.T) {
	compose := "services:\n  worker:\n    image: busybox\n"
	if got := ResolveLocalPort(compose, 0); got != 80 {
		t.Fatalf("got %d, want default 80", got)
	}
}
