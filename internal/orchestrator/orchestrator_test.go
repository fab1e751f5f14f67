package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/alephdeploy/control-plane/internal/catalog"
	"github.com/alephdeploy/control-plane/internal/models"
	"github.com/alephdeploy/control-plane/internal/network"
	"github.com/alephdeploy/control-plane/internal/sshexec"
	"github.com/alephdeploy/control-plane/internal/store"
)

type fakeExecutor struct {
	connectOK    bool
	deployResult sshexec.DeployResult
	caddyResult  sshexec.CaddyResult
	revokeErr    error
}

func (f *fakeExecutor) TestConnection(ctx context.Context) bool { return f.connectOK }
func (f *fakeExecutor) DeployCompose(ctx context.Context, appID, compose string) sshexec.DeployResult {
	return f.deployResult
}
func (f *fakeExecutor) SetupCaddyProxy(ctx context.Context, localPort int, subdomain, baseDomain string) sshexec.CaddyResult {
	return f.caddyResult
}
func (f *fakeExecutor) RevokeDeployKey(ctx context.Context, publicKey string) error { return f.revokeErr }
func (f *fakeExecutor) GetAppStatus(ctx context.Context, appID string) sshexec.AppStatus {
	return sshexec.AppStatus{}
}
func (f *fakeExecutor) StopApp(ctx context.Context, appID string) error   { return nil }
func (f *fakeExecutor) RemoveApp(ctx context.Context, appID string) error { return nil }
func (f *fakeExecutor) Close() error                                     { return nil }

type fakeAdapter struct {
	subdomain string
}

func (f *fakeAdapter) LookupSubdomain(ctx context.Context, instanceID string) string { return f.subdomain }
func (f *fakeAdapter) NotifyNodeStart(ctx context.Context, nodeURL, instanceID string) int {
	return 200
}
func (f *fakeAdapter) LookupAllocation(ctx context.Context, instanceID, preferredNodeURL string) network.Allocation {
	return network.Allocation{}
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Load(filepath.Join("..", "..", "templates", "apps.json"))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return c
}

func newTestOrchestrator(t *testing.T, exec *fakeExecutor, adapter *fakeAdapter) *Orchestrator {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "deployments.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return New(Deps{
		Store:           s,
		Catalog:         testCatalog(t),
		Adapter:         adapter,
		NewExecutor:     func(host string, port int, user string) Executor { return exec },
		DeployPublicKey: "ssh-ed25519 AAAAfake deploy@control-plane",
		CaddyBaseDomain: "2n6.me",
		Logger:          zap.NewNop(),
	})
}

func waitForTerminal(t *testing.T, o *Orchestrator, id string) *models.Deployment {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d := o.Store().Get(id)
		if d != nil && (d.Status == models.StatusComplete || d.Status == models.StatusFailed || d.Status == models.StatusRunning) {
			return d
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("deployment %s did not reach a terminal status in time", id)
	return nil
}

func TestHappyPathCompletesWithPublicURL(t *testing.T) {
	exec := &fakeExecutor{
		connectOK:    true,
		deployResult: sshexec.DeployResult{Status: "running", Containers: []sshexec.ContainerInfo{{Name: "web", State: "running"}}},
		caddyResult:  sshexec.CaddyResult{Status: "running", URL: "https://tenant-7.2n6.me"},
	}
	adapter := &fakeAdapter{subdomain: "tenant-7"}
	o := newTestOrchestrator(t, exec, adapter)

	id, err := o.Accept(AcceptRequest{
		Owner: "0x" + "ab" + strings.Repeat("0", 38), AppID: "nginx-demo",
		SSHHost: "203.0.113.5", SSHPort: 22, SetupTunnel: true, InstanceHash: "abc123",
	})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	d := waitForTerminal(t, o, id)
	if d.Status != models.StatusComplete {
		t.Fatalf("status = %s, want complete", d.Status)
	}
	if d.PublicURL != "https://tenant-7.2n6.me" {
		t.Fatalf("public url = %q", d.PublicURL)
	}
}

func TestPublishSkippedWithoutSubdomainStillCompletes(t *testing.T) {
	exec := &fakeExecutor{
		connectOK:    true,
		deployResult: sshexec.DeployResult{Status: "running"},
	}
	adapter := &fakeAdapter{subdomain: ""}
	o := newTestOrchestrator(t, exec, adapter)

	id, err := o.Accept(AcceptRequest{
		Owner: "0x" + strings.Repeat("a", 40), AppID: "nginx-demo",
		SSHHost: "203.0.113.5", SSHPort: 22, SetupTunnel: true, InstanceHash: "missing",
	})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	d := waitForTerminal(t, o, id)
	if d.Status != models.StatusComplete {
		t.Fatalf("status = %s, want complete", d.Status)
	}
	if d.PublicURL != "" {
		t.Fatalf("expected no public url, got %q", d.PublicURL)
	}
}

func TestSSHUnreachableDoesNotCompleteEarly(t *testing.T) {
	exec := &fakeExecutor{connectOK: false}
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(t, exec, adapter)

	// The connect phase retries for ~2 minutes before failing; this test
	// only asserts the deployment hasn't completed shortly after accept.
	id, err := o.Accept(AcceptRequest{
		Owner: "0x" + strings.Repeat("a", 40), AppID: "nginx-demo",
		SSHHost: "203.0.113.5", SSHPort: 22,
	})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	d := o.Store().Get(id)
	if d.Status == models.StatusComplete {
		t.Fatalf("should not have completed without a reachable host")
	}
}

func TestAcceptRejectsUnknownApp(t *testing.T) {
	o := newTestOrchestrator(t, &fakeExecutor{}, &fakeAdapter{})
	_, err := o.Accept(AcceptRequest{Owner: "0x" + strings.Repeat("a", 40), AppID: "does-not-exist", SSHHost: "1.2.3.4", SSHPort: 22})
	if err == nil {
		t.Fatalf("expected error for unknown app id")
	}
}

func TestAcceptRejectsPrivateHost(t *testing.T) {
	o := newTestOrchestrator(t, &fakeExecutor{}, &fakeAdapter{})
	_, err := o.Accept(AcceptRequest{Owner: "0x" + strings.Repeat("a", 40), AppID: "nginx-demo", SSHHost: "10.0.0.1", SSHPort: 22})
	if err == nil {
		t.Fatalf("expected error for private host")
	}
}
