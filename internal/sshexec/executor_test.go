package sshexec

import (
	"strings"
	"testing"
)

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote("/root/apps/app's-name")
	if got != `'/root/apps/app'\''s-name'` {
		t.Fatalf("shellQuote = %q", got)
	}
}

func TestSubstitutePlaceholdersReplacesBoth(t *testing.T) {
	compose := "pw: __GENERATED_PASSWORD__\nroot: __GENERATED_ROOT_PASSWORD__\n"
	calls := 0
	out, generated := SubstitutePlaceholders(compose, func() string {
		calls++
		return "secret"
	})
	if calls != 2 {
		t.Fatalf("expected 2 random draws, got %d", calls)
	}
	if strings.Contains(out, "__GENERATED") {
		t.Fatalf("placeholders not fully substituted: %s", out)
	}
	if generated["password"] != "secret" || generated["root_password"] != "secret" {
		t.Fatalf("generated = %+v", generated)
	}
}

func TestSubstitutePlaceholdersNoneFound(t *testing.T) {
	out, generated := SubstitutePlaceholders("services:\n  web:\n    image: nginx\n", func() string { return "x" })
	if len(generated) != 0 {
		t.Fatalf("expected no substitutions, got %+v", generated)
	}
	if out != "services:\n  web:\n    image: nginx\n" {
		t.Fatalf("compose content mutated unexpectedly")
	}
}

func TestKeyMatchPrefixIgnoresComment(t *testing.T) {
	p1, err := keyMatchPrefix("ssh-ed25519 AAAAC3Nz one@comment")
	if err != nil {
		t.Fatalf("keyMatchPrefix: %v", err)
	}
	p2, _ := keyMatchPrefix("ssh-ed25519 AAAAC3Nz another@comment\n")
	if p1 != p2 {
		t.Fatalf("expected matching prefixes regardless of comment: %q vs %q", p1, p2)
	}
}

func TestKeyMatchPrefixRejectsMalformed(t *testing.T) {
	if _, err := keyMatchPrefix("not-a-key"); err == nil {
		t.Fatalf("expected error for malformed key")
	}
}
