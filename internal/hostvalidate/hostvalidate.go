// Package hostvalidate rejects SSH targets that are loopback, private,
// link-local, or unspecified IP literals, the "localhost" name, or known
// cloud-metadata endpoints — the input-validation boundary the
// orchestrator's accept-request step enforces before ever dialing a host.
// Other special-purpose ranges (multicast, documentation, 240.0.0.0/4) are
// not rejected, and hostnames are not resolved before the check.
package hostvalidate

import (
	"fmt"
	"net"
)

// metadataHosts are literal hosts known to serve cloud instance metadata;
// always rejected regardless of the loopback-override flag.
var metadataHosts = map[string]bool{
	"169.254.169.254": true,
	"metadata.google.internal": true,
}

// Host validates host against the reserved-range and metadata-endpoint
// rules. allowLoopback lifts the loopback ban for self-deployment
// scenarios; it never lifts the private/link-local/metadata bans.
func Host(host string, allowLoopback bool) error {
	if metadataHosts[host] {
		return fmt.Errorf("hostvalidate: %q is a cloud metadata endpoint", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Not a literal IP (e.g. a hostname like "localhost"); only
		// "localhost" gets the loopback-override treatment, everything
		// else is allowed through to SSH's own connection failure.
		if host == "localhost" && !allowLoopback {
			return fmt.Errorf("hostvalidate: loopback host %q not allowed", host)
		}
		return nil
	}

	if ip.IsLoopback() {
		if allowLoopback {
			return nil
		}
		return fmt.Errorf("hostvalidate: loopback host %q not allowed", host)
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return fmt.Errorf("hostvalidate: reserved-range host %q not allowed", host)
	}
	return nil
}

// Port validates an SSH port is within the valid TCP range.
func Port(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("hostvalidate: port %d out of range", port)
	}
	return nil
}
