package orchestrator

import (
	"regexp"
	"strings"
)

var (
	serviceHeaderPattern = regexp.MustCompile(`^  (\S+):\s*$`)
	portsHeaderPattern   = regexp.MustCompile(`^    ports:\s*$`)
	portMappingPattern   = regexp.MustCompile(`(\d{1,5}):(\d{1,5})`)
)

type portCandidate struct {
	service   string
	hostPort  int
	container int
}

// ResolveLocalPort determines the local port the publish phase should
// point Caddy at: the caller's override if given, else the first
// host:container mapping belonging to a service named "web" or "app",
// else the first mapping whose host port is <1024, else the first
// mapping found anywhere in the compose document, else 80.
func ResolveLocalPort(compose string, override int) int {
	if override > 0 {
		return override
	}

	candidates := scanPortCandidates(compose)
	if len(candidates) == 0 {
		return 80
	}

	for _, c := range candidates {
		if c.service == "web" || c.service == "app" {
			return c.hostPort
		}
	}
	for _, c := range candidates {
		if c.hostPort < 1024 {
			return c.hostPort
		}
	}
	return candidates[0].hostPort
}

func scanPortCandidates(compose string) []portCandidate {
	var candidates []portCandidate
	currentService := ""
	inPorts := false

	lines := splitLines(compose)
	for _, line := range lines {
		if m := serviceHeaderPattern.FindStringSubmatch(line); m != nil {
			currentService = m[1]
			inPorts = false
			continue
		}
		if portsHeaderPattern.MatchString(line) {
			inPorts = true
			continue
		}
		if !inPorts {
			continue
		}
		// A line without deeper indentation than the ports block ends it;
		// list items written at the key's own indentation still belong to it.
		trimmed := strings.TrimLeft(line, " ")
		if trimmed != "" && len(line)-len(trimmed) <= 4 && !strings.HasPrefix(trimmed, "-") {
			inPorts = false
			continue
		}
		if m := portMappingPattern.FindStringSubmatch(line); m != nil {
			candidates = append(candidates, portCandidate{
				service:   currentService,
				hostPort:  atoiSafe(m[1]),
				container: atoiSafe(m[2]),
			})
		}
	}
	return candidates
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
