package sshexec

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// loadSigner parses the deployment private key file at keyPath.
func loadSigner(keyPath string) (ssh.Signer, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	return signer, nil
}

// RevokeDeployKey removes the deployment public key from the remote
// user's authorized_keys, matching on key-type plus base64 prefix and
// ignoring any trailing comment. The file is rewritten atomically: the
// filtered content is written to a sibling temp file, then renamed over
// authorized_keys in one remote command, so a concurrent SSH login never
// observes a half-written file. This replaces the fragile sed-based
// approach of matching on the full key line.
func (e *Executor) RevokeDeployKey(ctx context.Context, publicKey string) error {
	prefix, err := keyMatchPrefix(publicKey)
	if err != nil {
		return err
	}

	const authorizedKeysPath = ".ssh/authorized_keys"
	code, stdout, stderr := e.RunCommand(ctx, fmt.Sprintf("cat %s 2>/dev/null", authorizedKeysPath), 15*time.Second)
	if code != 0 {
		return fmt.Errorf("sshexec: read authorized_keys: %s", stderr)
	}

	var kept []string
	for _, line := range strings.Split(stdout, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Contains(line, prefix) {
			continue
		}
		kept = append(kept, line)
	}
	newContent := strings.Join(kept, "\n")
	if newContent != "" {
		newContent += "\n"
	}

	// write-temp-then-rename on the remote host: write to a sibling temp
	// file, then mv it over authorized_keys as a single atomic operation.
	tmpPath := authorizedKeysPath + ".tmp-revoke"
	code, _, stderr = e.writeFile(ctx, newContent, tmpPath)
	if code != 0 {
		return fmt.Errorf("sshexec: write temp authorized_keys: %s", stderr)
	}

	code, _, stderr = e.RunCommand(ctx, fmt.Sprintf("chmod 600 %s && mv %s %s", shellQuote(tmpPath), shellQuote(tmpPath), shellQuote(authorizedKeysPath)), 15*time.Second)
	if code != 0 {
		return fmt.Errorf("sshexec: replace authorized_keys: %s", stderr)
	}
	return nil
}

// keyMatchPrefix returns the "type base64prefix" portion of an
// authorized_keys-format public key, ignoring any trailing comment,
// used to identify the deployment key's line regardless of the comment
// a remote host may have appended to it.
func keyMatchPrefix(publicKey string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(publicKey))
	if len(fields) < 2 {
		return "", fmt.Errorf("sshexec: malformed public key")
	}
	return fields[0] + " " + fields[1], nil
}
