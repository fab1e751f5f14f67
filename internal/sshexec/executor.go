// Package sshexec implements the Remote Executor: it safely runs shell
// commands and writes files on a remote host over SSH using a
// server-owned private key. It never interpolates caller-supplied
// strings into a shell-level command line; file contents always travel
// as a base64-encoded payload piped to a decoder invocation whose
// target path is shell-quoted.
package sshexec

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	appDirBase = "/root/apps"

	maxStdoutBytes = 2000
	maxStderrBytes = 1000
)

// Executor runs commands and manages compose apps on one remote host.
// Not safe for concurrent DeployCompose calls against the same host —
// the orchestrator's per-host keyed mutex is responsible for that.
type Executor struct {
	host    string
	port    int
	user    string
	keyPath string

	client *ssh.Client
}

func New(host string, port int, user, keyPath string) *Executor {
	if user == "" {
		user = "root"
	}
	return &Executor{host: host, port: port, user: user, keyPath: keyPath}
}

func (e *Executor) dial(ctx context.Context) (*ssh.Client, error) {
	if e.client != nil {
		return e.client, nil
	}

	signer, err := loadSigner(e.keyPath)
	if err != nil {
		return nil, fmt.Errorf("sshexec: load key: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User:            e.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	e.client = client
	return client, nil
}

// Close releases the underlying SSH connection, if any.
func (e *Executor) Close() error {
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// RunCommand runs cmd on the remote host. Default timeout is 120s;
// callers raise it for image pulls. Returns code 124 on timeout.
func (e *Executor) RunCommand(ctx context.Context, cmd string, timeout time.Duration) (code int, stdout string, stderr string) {
	return e.runCommand(ctx, cmd, nil, timeout)
}

func (e *Executor) runCommand(ctx context.Context, cmd string, stdin []byte, timeout time.Duration) (int, string, string) {
	client, err := e.dial(ctx)
	if err != nil {
		return 1, "", err.Error()
	}

	session, err := client.NewSession()
	if err != nil {
		return 1, "", err.Error()
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf
	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-time.After(timeout):
		session.Signal(ssh.SIGKILL)
		session.Close()
		return 124, "", fmt.Sprintf("Command timed out after %d seconds", int(timeout.Seconds()))
	case err := <-done:
		code := 0
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				code = exitErr.ExitStatus()
			} else {
				return 1, tail(outBuf.String(), maxStdoutBytes), err.Error()
			}
		}
		return code, tail(outBuf.String(), maxStdoutBytes), tail(errBuf.String(), maxStderrBytes)
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		return 124, "", "context cancelled"
	}
}

func tail(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[len(s)-maxBytes:]
}

// TestConnection probes the remote host with a trivial echo, timing out
// in at most 15s.
func (e *Executor) TestConnection(ctx context.Context) bool {
	code, stdout, _ := e.RunCommand(ctx, "echo connected", 15*time.Second)
	return code == 0 && strings.Contains(stdout, "connected")
}

func (e *Executor) checkDocker(ctx context.Context) bool {
	code, _, _ := e.RunCommand(ctx, "docker --version", 15*time.Second)
	return code == 0
}

func (e *Executor) installDocker(ctx context.Context) (bool, string) {
	code, _, stderr := e.RunCommand(ctx, "curl -fsSL https://get.docker.com | sh", 300*time.Second)
	if code == 0 {
		return true, "Docker installed successfully"
	}
	return false, fmt.Sprintf("Docker installation failed: %s", stderr)
}

// writeFile transfers content to filepath on the remote host using a
// base64-decode-to-path pipeline; content is piped over stdin, never
// interpolated into the command string.
func (e *Executor) writeFile(ctx context.Context, content, filepath string) (int, string, string) {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	cmd := fmt.Sprintf("base64 -d > %s", shellQuote(filepath))
	return e.runCommand(ctx, cmd, []byte(encoded), 60*time.Second)
}

// shellQuote wraps s in single quotes, escaping any embedded single
// quote, for safe use as a single shell token.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// DeployStep is one entry of DeployCompose's per-step audit trail.
type DeployStep struct {
	Step    string `json:"step"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// DeployResult is the structured outcome of DeployCompose.
type DeployResult struct {
	Status             string             `json:"status"`
	Steps              []DeployStep       `json:"steps"`
	AppName            string             `json:"app_name,omitempty"`
	AppDirectory       string             `json:"app_directory,omitempty"`
	Error              string             `json:"error,omitempty"`
	Containers         []ContainerInfo    `json:"containers,omitempty"`
	GeneratedPasswords map[string]string  `json:"generated_passwords,omitempty"`
}

// ContainerInfo mirrors one line of `docker compose ps --format json`.
type ContainerInfo struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Status  string `json:"Status"`
	Image   string `json:"Image"`
}

const (
	placeholderPassword     = "__GENERATED_PASSWORD__"
	placeholderRootPassword = "__GENERATED_ROOT_PASSWORD__"
)

// SubstitutePlaceholders replaces the compose document's generated-secret
// placeholders with fresh random strings, returning the rewritten
// document and the values substituted (for one-time disclosure).
func SubstitutePlaceholders(compose string, randomString func() string) (string, map[string]string) {
	generated := make(map[string]string)
	if strings.Contains(compose, placeholderPassword) {
		v := randomString()
		compose = strings.ReplaceAll(compose, placeholderPassword, v)
		generated["password"] = v
	}
	if strings.Contains(compose, placeholderRootPassword) {
		v := randomString()
		compose = strings.ReplaceAll(compose, placeholderRootPassword, v)
		generated["root_password"] = v
	}
	return compose, generated
}

// DeployCompose writes a docker-compose app under /root/apps/<appID> and
// brings it up, installing Docker on first use if necessary.
func (e *Executor) DeployCompose(ctx context.Context, appID, composeContent string) DeployResult {
	safeApp, err := SanitizeAppName(appID)
	if err != nil {
		return DeployResult{Status: "failed", Error: err.Error()}
	}

	result := DeployResult{AppName: safeApp}
	appDir := fmt.Sprintf("%s/%s", appDirBase, safeApp)

	code, _, stderr := e.RunCommand(ctx, fmt.Sprintf("mkdir -p %s", shellQuote(appDir)), 30*time.Second)
	result.Steps = append(result.Steps, DeployStep{Step: "create_directory", Success: code == 0, Error: nonEmptyOnFail(code, stderr)})
	if code != 0 {
		result.Status = "failed"
		result.Error = fmt.Sprintf("Failed to create directory: %s", stderr)
		return result
	}

	composePath := fmt.Sprintf("%s/docker-compose.yml", appDir)
	code, _, stderr = e.writeFile(ctx, composeContent, composePath)
	result.Steps = append(result.Steps, DeployStep{Step: "write_compose", Success: code == 0, Error: nonEmptyOnFail(code, stderr)})
	if code != 0 {
		result.Status = "failed"
		result.Error = fmt.Sprintf("Failed to write compose file: %s", stderr)
		return result
	}

	if strings.Contains(safeApp, "prometheus") || strings.Contains(safeApp, "grafana") {
		promConfig := "global:\n  scrape_interval: 15s\n\nscrape_configs:\n  - job_name: 'prometheus'\n    static_configs:\n      - targets: ['localhost:9090']\n"
		code, _, stderr = e.writeFile(ctx, promConfig, fmt.Sprintf("%s/prometheus.yml", appDir))
		result.Steps = append(result.Steps, DeployStep{Step: "write_prometheus_config", Success: code == 0, Error: nonEmptyOnFail(code, stderr)})
		if code != 0 {
			result.Status = "failed"
			result.Error = fmt.Sprintf("Failed to write prometheus.yml: %s", stderr)
			return result
		}
	}

	if !e.checkDocker(ctx) {
		result.Steps = append(result.Steps, DeployStep{Step: "docker_check", Success: false})
		ok, msg := e.installDocker(ctx)
		result.Steps = append(result.Steps, DeployStep{Step: "docker_install", Success: ok, Message: msg})
		if !ok {
			result.Status = "failed"
			result.Error = msg
			return result
		}
	} else {
		result.Steps = append(result.Steps, DeployStep{Step: "docker_check", Success: true})
	}

	code, _, stderr = e.RunCommand(ctx, fmt.Sprintf("cd %s && docker compose pull && docker compose up -d", shellQuote(appDir)), 600*time.Second)
	result.Steps = append(result.Steps, DeployStep{Step: "docker_compose_up", Success: code == 0, Error: nonEmptyOnFail(code, stderr)})
	if code != 0 {
		result.Status = "failed"
		result.Error = fmt.Sprintf("Failed to start containers: %s", stderr)
		return result
	}

	result.Containers = e.listContainers(ctx, appDir)
	result.Status = "running"
	result.AppDirectory = appDir
	return result
}

func nonEmptyOnFail(code int, stderr string) string {
	if code == 0 {
		return ""
	}
	return stderr
}

func (e *Executor) listContainers(ctx context.Context, appDir string) []ContainerInfo {
	code, stdout, _ := e.RunCommand(ctx, fmt.Sprintf("cd %s && docker compose ps --format json", shellQuote(appDir)), 30*time.Second)
	if code != 0 || strings.TrimSpace(stdout) == "" {
		return nil
	}

	var containers []ContainerInfo
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var c ContainerInfo
		if err := json.Unmarshal([]byte(line), &c); err == nil {
			containers = append(containers, c)
		}
	}
	return containers
}

// CaddyResult is the outcome of SetupCaddyProxy.
type CaddyResult struct {
	Status string
	URL    string
	Error  string
}

// SetupCaddyProxy installs Caddy if absent, writes a minimal single-host
// reverse-proxy config mapping subdomain.baseDomain to localhost:localPort,
// restarts Caddy, and returns the public URL.
func (e *Executor) SetupCaddyProxy(ctx context.Context, localPort int, subdomain, baseDomain string) CaddyResult {
	fqdn := fmt.Sprintf("%s.%s", subdomain, baseDomain)

	code, _, _ := e.RunCommand(ctx, "which caddy", 15*time.Second)
	if code != 0 {
		installCmd := "apt-get update -qq && apt-get install -y -qq debian-keyring debian-archive-keyring apt-transport-https curl && " +
			"curl -1sLf 'https://dl.cloudsmith.io/public/caddy/stable/gpg.key' | gpg --dearmor -o /usr/share/keyrings/caddy-stable-archive-keyring.gpg && " +
			"curl -1sLf 'https://dl.cloudsmith.io/public/caddy/stable/debian.deb.txt' | tee /etc/apt/sources.list.d/caddy-stable.list && " +
			"apt-get update -qq && apt-get install -y -qq caddy"
		code, _, stderr := e.RunCommand(ctx, installCmd, 120*time.Second)
		if code != 0 {
			return CaddyResult{Status: "failed", Error: fmt.Sprintf("Failed to install caddy: %s", stderr)}
		}
	}

	e.RunCommand(ctx, "systemctl stop caddy 2>/dev/null || true", 15*time.Second)

	caddyfile := fmt.Sprintf("%s {\n    reverse_proxy localhost:%d\n}\n", fqdn, localPort)
	code, _, stderr := e.writeFile(ctx, caddyfile, "/etc/caddy/Caddyfile")
	if code != 0 {
		return CaddyResult{Status: "failed", Error: fmt.Sprintf("Failed to write Caddyfile: %s", stderr)}
	}

	code, _, stderr = e.RunCommand(ctx, "systemctl enable caddy && systemctl start caddy", 30*time.Second)
	if code != 0 {
		return CaddyResult{Status: "failed", Error: fmt.Sprintf("Failed to start caddy: %s", stderr)}
	}

	time.Sleep(5 * time.Second)

	return CaddyResult{Status: "running", URL: fmt.Sprintf("https://%s", fqdn)}
}

// AppStatus is the outcome of GetAppStatus.
type AppStatus struct {
	AppName    string
	Status     string // unknown | not_found | running | degraded | stopped | error
	Containers []ContainerInfo
	Error      string
}

// GetAppStatus reports the current container status of a deployed app.
func (e *Executor) GetAppStatus(ctx context.Context, appID string) AppStatus {
	safeApp, err := SanitizeAppName(appID)
	if err != nil {
		return AppStatus{AppName: appID, Status: "error", Error: err.Error()}
	}

	appDir := fmt.Sprintf("%s/%s", appDirBase, safeApp)
	status := AppStatus{AppName: safeApp, Status: "unknown"}

	code, _, _ := e.RunCommand(ctx, fmt.Sprintf("test -d %s", shellQuote(appDir)), 15*time.Second)
	if code != 0 {
		status.Status = "not_found"
		return status
	}

	containers := e.listContainers(ctx, appDir)
	if containers == nil {
		status.Status = "stopped"
		return status
	}
	status.Containers = containers
	running := true
	for _, c := range containers {
		if c.State != "running" {
			running = false
			break
		}
	}
	if running {
		status.Status = "running"
	} else {
		status.Status = "degraded"
	}
	return status
}

// StopApp runs `docker compose down` for appID.
func (e *Executor) StopApp(ctx context.Context, appID string) error {
	safeApp, err := SanitizeAppName(appID)
	if err != nil {
		return err
	}
	appDir := fmt.Sprintf("%s/%s", appDirBase, safeApp)
	code, _, stderr := e.RunCommand(ctx, fmt.Sprintf("cd %s && docker compose down", shellQuote(appDir)), 120*time.Second)
	if code != 0 {
		return fmt.Errorf("sshexec: stop app: %s", stderr)
	}
	return nil
}

// RemoveApp tears down containers and deletes the app directory. Safe to
// call against an already-absent app directory.
func (e *Executor) RemoveApp(ctx context.Context, appID string) error {
	safeApp, err := SanitizeAppName(appID)
	if err != nil {
		return err
	}
	appDir := fmt.Sprintf("%s/%s", appDirBase, safeApp)
	e.RunCommand(ctx, fmt.Sprintf("cd %s && docker compose down -v 2>/dev/null", shellQuote(appDir)), 120*time.Second)
	code, _, stderr := e.RunCommand(ctx, fmt.Sprintf("rm -rf %s", shellQuote(appDir)), 30*time.Second)
	if code != 0 {
		return fmt.Errorf("sshexec: remove app: %s", stderr)
	}
	return nil
}
