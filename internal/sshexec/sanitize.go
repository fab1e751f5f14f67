package sshexec

import (
	"fmt"
	"regexp"
)

var appNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// SanitizeAppName is the one true choke point for embedding a caller-supplied
// application identifier in a remote shell path. Any future code path that
// needs to do so must route through this helper rather than inventing its
// own check.
func SanitizeAppName(appName string) (string, error) {
	if appName == "" {
		return "", fmt.Errorf("sshexec: app name cannot be empty")
	}
	if !appNamePattern.MatchString(appName) {
		return "", fmt.Errorf("sshexec: invalid app name %q", appName)
	}
	return appName, nil
}
