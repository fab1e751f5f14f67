package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alephdeploy/control-plane/internal/eventlog"
	"github.com/alephdeploy/control-plane/internal/models"
	"github.com/alephdeploy/control-plane/internal/orchestrator"
	"github.com/alephdeploy/control-plane/internal/sshexec"
	"github.com/alephdeploy/control-plane/internal/store"
)

type fakeExecutor struct{}

func (fakeExecutor) TestConnection(ctx context.Context) bool { return true }
func (fakeExecutor) DeployCompose(ctx context.Context, appID, compose string) sshexec.DeployResult {
	return sshexec.DeployResult{}
}
func (fakeExecutor) SetupCaddyProxy(ctx context.Context, localPort int, subdomain, baseDomain string) sshexec.CaddyResult {
	return sshexec.CaddyResult{}
}
func (fakeExecutor) RevokeDeployKey(ctx context.Context, publicKey string) error { return nil }
func (fakeExecutor) GetAppStatus(ctx context.Context, appID string) sshexec.AppStatus {
	return sshexec.AppStatus{}
}
func (fakeExecutor) StopApp(ctx context.Context, appID string) error   { return nil }
func (fakeExecutor) RemoveApp(ctx context.Context, appID string) error { return nil }
func (fakeExecutor) Close() error                                     { return nil }

func newTestDeploymentHandler(t *testing.T) (*DeploymentHandler, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "deployments.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	orch := orchestrator.New(orchestrator.Deps{
		Store:           s,
		NewExecutor:     func(host string, port int, user string) orchestrator.Executor { return fakeExecutor{} },
		DeployPublicKey: "ssh-ed25519 AAAAfake deploy@control-plane",
		Logger:          zap.NewNop(),
	})
	return NewDeploymentHandler(orch, eventlog.New(nil, zap.NewNop()), true), s
}

func seedDeployment(t *testing.T, s *store.Store, d *models.Deployment) {
	t.Helper()
	if err := s.Add(d); err != nil {
		t.Fatalf("seed deployment: %v", err)
	}
}

func withWalletAddress(c *gin.Context, address string) {
	c.Set("walletAddress", address)
}

func newGinContext(w *httptest.ResponseRecorder, method, path string, params gin.Params) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, nil)
	c.Params = params
	return c
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestStatusDisclosesGeneratedPasswordsExactlyOnce(t *testing.T) {
	h, s := newTestDeploymentHandler(t)
	seedDeployment(t, s, &models.Deployment{
		ID:                 "dep-1",
		Owner:              "0xowner",
		AppID:              "app-1",
		Status:             models.StatusComplete,
		GeneratedPasswords: map[string]string{"admin": "abcdefghijklmnopqrstuv"},
	})

	// First poll: passwords must be present.
	w1 := httptest.NewRecorder()
	c1 := newGinContext(w1, http.MethodGet, "/api/deployments/dep-1/status", gin.Params{{Key: "id", Value: "dep-1"}})
	withWalletAddress(c1, "0xowner")
	h.Status(c1)

	if w1.Code != http.StatusOK {
		t.Fatalf("first poll: expected 200, got %d", w1.Code)
	}
	body1 := decodeEnvelope(t, w1)
	data1, _ := body1["data"].(map[string]interface{})
	passwords1, _ := data1["generated_passwords"].(map[string]interface{})
	if len(passwords1) != 1 || passwords1["admin"] != "abcdefghijklmnopqrstuv" {
		t.Fatalf("first poll: expected generated_passwords to be disclosed, got %#v", data1["generated_passwords"])
	}

	// Second poll: passwords must never reappear.
	w2 := httptest.NewRecorder()
	c2 := newGinContext(w2, http.MethodGet, "/api/deployments/dep-1/status", gin.Params{{Key: "id", Value: "dep-1"}})
	withWalletAddress(c2, "0xowner")
	h.Status(c2)

	body2 := decodeEnvelope(t, w2)
	data2, _ := body2["data"].(map[string]interface{})
	if _, present := data2["generated_passwords"]; present {
		t.Fatalf("second poll: generated_passwords should no longer be present, got %#v", data2["generated_passwords"])
	}
}

func TestMyDeploymentsDisclosesGeneratedPasswordsExactlyOnce(t *testing.T) {
	h, s := newTestDeploymentHandler(t)
	seedDeployment(t, s, &models.Deployment{
		ID:                 "dep-2",
		Owner:              "0xowner",
		AppID:              "app-1",
		Status:             models.StatusComplete,
		GeneratedPasswords: map[string]string{"admin": "wxyzabcdefghijklmnopqr"},
	})

	w1 := httptest.NewRecorder()
	c1 := newGinContext(w1, http.MethodGet, "/api/deployments/my", nil)
	withWalletAddress(c1, "0xowner")
	h.MyDeployments(c1)

	body1 := decodeEnvelope(t, w1)
	data1, _ := body1["data"].(map[string]interface{})
	deployments1, _ := data1["deployments"].([]interface{})
	if len(deployments1) != 1 {
		t.Fatalf("expected 1 deployment, got %d", len(deployments1))
	}
	first := deployments1[0].(map[string]interface{})
	if _, present := first["generated_passwords"]; !present {
		t.Fatalf("first listing: expected generated_passwords present, got %#v", first)
	}

	w2 := httptest.NewRecorder()
	c2 := newGinContext(w2, http.MethodGet, "/api/deployments/my", nil)
	withWalletAddress(c2, "0xowner")
	h.MyDeployments(c2)

	body2 := decodeEnvelope(t, w2)
	data2, _ := body2["data"].(map[string]interface{})
	deployments2, _ := data2["deployments"].([]interface{})
	second := deployments2[0].(map[string]interface{})
	if _, present := second["generated_passwords"]; present {
		t.Fatalf("second listing: generated_passwords should no longer be present, got %#v", second)
	}
}

func TestStatusForbidsNonOwner(t *testing.T) {
	h, s := newTestDeploymentHandler(t)
	seedDeployment(t, s, &models.Deployment{
		ID:     "dep-3",
		Owner:  "0xowner",
		AppID:  "app-1",
		Status: models.StatusRunning,
	})

	w := httptest.NewRecorder()
	c := newGinContext(w, http.MethodGet, "/api/deployments/dep-3/status", gin.Params{{Key: "id", Value: "dep-3"}})
	withWalletAddress(c, "0xsomeoneelse")
	h.Status(c)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", w.Code)
	}
}

func TestRemoveForbidsNonOwner(t *testing.T) {
	h, s := newTestDeploymentHandler(t)
	seedDeployment(t, s, &models.Deployment{
		ID:     "dep-4",
		Owner:  "0xowner",
		AppID:  "app-1",
		Status: models.StatusRunning,
	})

	w := httptest.NewRecorder()
	c := newGinContext(w, http.MethodDelete, "/api/deployments/dep-4", gin.Params{{Key: "id", Value: "dep-4"}})
	withWalletAddress(c, "0xsomeoneelse")
	h.Remove(c)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", w.Code)
	}
}
