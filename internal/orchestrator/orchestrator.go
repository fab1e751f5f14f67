// Package orchestrator implements the Deployment Orchestrator: the
// state machine that walks a deployment from an accepted request through
// connect, install, publish, and revoke, keeping the Deployment Store and
// the in-memory Job in step. Each deployment runs in its own goroutine,
// spawned at request acceptance; docker installs on the same host are
// serialized via a per-host keyed mutex rather than a worker pool.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alephdeploy/control-plane/internal/apierr"
	"github.com/alephdeploy/control-plane/internal/catalog"
	"github.com/alephdeploy/control-plane/internal/hostvalidate"
	"github.com/alephdeploy/control-plane/internal/models"
	"github.com/alephdeploy/control-plane/internal/network"
	"github.com/alephdeploy/control-plane/internal/sshexec"
	"github.com/alephdeploy/control-plane/internal/store"
)

// Executor is the subset of the Remote Executor the orchestrator drives.
// Narrowed to an interface so tests can substitute a fake.
type Executor interface {
	TestConnection(ctx context.Context) bool
	DeployCompose(ctx context.Context, appID, compose string) sshexec.DeployResult
	SetupCaddyProxy(ctx context.Context, localPort int, subdomain, baseDomain string) sshexec.CaddyResult
	RevokeDeployKey(ctx context.Context, publicKey string) error
	GetAppStatus(ctx context.Context, appID string) sshexec.AppStatus
	StopApp(ctx context.Context, appID string) error
	RemoveApp(ctx context.Context, appID string) error
	Close() error
}

// ExecutorFactory builds an Executor bound to one SSH target. Separated
// from the Orchestrator so tests can inject a fake without dialing SSH.
type ExecutorFactory func(host string, port int, user string) Executor

func DefaultExecutorFactory(keyPath string) ExecutorFactory {
	return func(host string, port int, user string) Executor {
		return sshexec.New(host, port, user, keyPath)
	}
}

// NetworkAdapter is the subset of the External-Network Adapter the
// orchestrator consumes.
type NetworkAdapter interface {
	LookupSubdomain(ctx context.Context, instanceID string) string
	NotifyNodeStart(ctx context.Context, nodeURL, instanceID string) int
	LookupAllocation(ctx context.Context, instanceID, preferredNodeURL string) network.Allocation
}

// RevokeEnqueuer hands a post-install key revocation off to the
// asynq-backed retry queue. When nil, revoke runs inline instead.
type RevokeEnqueuer interface {
	EnqueueRevoke(deploymentID, host string, port int, user string) error
}

// EventLog is the optional, supplementary audit trail of phase
// transitions. A nil-safe no-op when the event log is disabled.
type EventLog interface {
	Record(deploymentID, phase, status, detail string)
}

type noopEventLog struct{}

func (noopEventLog) Record(string, string, string, string) {}

const (
	connectProbeAttempts = 12
	connectProbeSpacing  = 10 * time.Second
	composeTimeoutCap    = 10 * time.Minute
)

// Orchestrator is the Deployment Orchestrator.
type Orchestrator struct {
	store       *store.Store
	catalog     *catalog.Catalog
	adapter     NetworkAdapter
	newExecutor ExecutorFactory
	deployKey   string // server's deployment public key, for revoke matching
	baseDomain  string
	revokeQueue RevokeEnqueuer
	eventLog    EventLog
	logger      *zap.Logger

	jobsMu sync.Mutex
	jobs   map[string]*models.Job

	hostLocks sync.Map // "host:port" -> *sync.Mutex

	notifyMu     sync.Mutex
	lastNotified map[string]time.Time
}

type Deps struct {
	Store            *store.Store
	Catalog          *catalog.Catalog
	Adapter          NetworkAdapter
	NewExecutor      ExecutorFactory
	DeployPublicKey  string
	CaddyBaseDomain  string
	RevokeQueue      RevokeEnqueuer
	EventLog         EventLog
	Logger           *zap.Logger
}

func New(d Deps) *Orchestrator {
	if d.EventLog == nil {
		d.EventLog = noopEventLog{}
	}
	return &Orchestrator{
		store:        d.Store,
		catalog:      d.Catalog,
		adapter:      d.Adapter,
		newExecutor:  d.NewExecutor,
		deployKey:    d.DeployPublicKey,
		baseDomain:   d.CaddyBaseDomain,
		revokeQueue:  d.RevokeQueue,
		eventLog:     d.EventLog,
		logger:       d.Logger,
		jobs:         make(map[string]*models.Job),
		lastNotified: make(map[string]time.Time),
	}
}

// AcceptRequest is the synchronous, validated input to Accept.
type AcceptRequest struct {
	Owner           string
	AppID           string
	SSHHost         string
	SSHPort         int
	SSHUser         string
	SetupTunnel     bool
	TunnelPort      int
	InstanceHash    string
	AllowLoopback   bool
}

// Accept validates req, creates the Deployment record, and spawns the
// background job. Returns the new deployment identifier synchronously.
func (o *Orchestrator) Accept(req AcceptRequest) (string, error) {
	tmpl, ok := o.catalog.Get(req.AppID)
	if !ok {
		return "", apierr.NotFound(fmt.Sprintf("unknown app id %q", req.AppID))
	}
	if err := hostvalidate.Host(req.SSHHost, req.AllowLoopback); err != nil {
		return "", apierr.Validation(err.Error())
	}
	if err := hostvalidate.Port(req.SSHPort); err != nil {
		return "", apierr.Validation(err.Error())
	}

	id := deploymentID(req.AppID, req.Owner)
	d := &models.Deployment{
		ID:         id,
		Owner:      req.Owner,
		AppID:      req.AppID,
		AppName:    tmpl.Name,
		SSHHost:    req.SSHHost,
		SSHPort:    req.SSHPort,
		InstanceID: req.InstanceHash,
		Status:     models.StatusDeploying,
	}
	if err := o.store.Add(d); err != nil {
		return "", fmt.Errorf("orchestrator: persist deployment: %w", err)
	}

	o.setJob(id, &models.Job{DeploymentID: id, Step: models.StepQueued})

	go o.run(context.Background(), id, req, tmpl)

	return id, nil
}

func deploymentID(appID, owner string) string {
	prefix := owner
	if len(prefix) >= 10 {
		prefix = prefix[2:10] // skip "0x", take 8 hex chars
	}
	return fmt.Sprintf("%s-%s-%d", appID, prefix, time.Now().Unix())
}

func (o *Orchestrator) run(ctx context.Context, id string, req AcceptRequest, tmpl models.AppTemplate) {
	defer func() {
		if r := recover(); r != nil {
			o.fail(id, fmt.Sprintf("panic: %v", r))
		}
	}()

	sshUser := req.SSHUser
	if sshUser == "" {
		sshUser = "root"
	}
	exec := o.newExecutor(req.SSHHost, req.SSHPort, sshUser)
	defer exec.Close()

	// Phase 1: connect.
	o.setStep(id, models.StepConnecting)
	if !o.connect(ctx, exec) {
		o.eventLog.Record(id, "connect", "failed", "")
		o.fail(id, fmt.Sprintf("Cannot SSH to %s:%d after %d attempts.", req.SSHHost, req.SSHPort, connectProbeAttempts))
		return
	}
	o.eventLog.Record(id, "connect", "ok", "")

	// Phase 2: install.
	o.setStep(id, models.StepDeploying)
	compose := tmpl.Compose
	result, generated := o.install(ctx, req, id, compose, exec)
	if result.Status != "running" {
		o.eventLog.Record(id, "install", "failed", result.Error)
		o.fail(id, result.Error)
		return
	}
	o.eventLog.Record(id, "install", "ok", "")

	o.store.Update(id, func(d *models.Deployment) {
		d.Containers = toContainerSummaries(result.Containers)
	})

	// Phase 3: publish.
	publishSettled := true
	if req.SetupTunnel {
		publishSettled = o.publish(ctx, req, id, compose, exec)
	}

	// Phase 4: revoke (non-fatal).
	o.revoke(ctx, id, req, exec)

	// Phase 5: complete. Generated passwords are stored together with the
	// final status so they are first readable once the deployment is done.
	finalStatus := models.StatusRunning
	if publishSettled {
		finalStatus = models.StatusComplete
	}
	o.store.Update(id, func(d *models.Deployment) {
		d.Status = finalStatus
		d.GeneratedPasswords = generated
	})
	o.setStep(id, models.StepDone)
}

func (o *Orchestrator) connect(ctx context.Context, exec Executor) bool {
	for i := 0; i < connectProbeAttempts; i++ {
		if exec.TestConnection(ctx) {
			return true
		}
		if i < connectProbeAttempts-1 {
			time.Sleep(connectProbeSpacing)
		}
	}
	return false
}

func (o *Orchestrator) install(ctx context.Context, req AcceptRequest, id, compose string, exec Executor) (sshexec.DeployResult, map[string]string) {
	compose, generated := sshexec.SubstitutePlaceholders(compose, randomPassword)

	unlock := o.lockHost(req.SSHHost, req.SSHPort)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, composeTimeoutCap)
	defer cancel()

	result := exec.DeployCompose(ctx, req.AppID, compose)
	return result, generated
}

// publish reports whether the publish phase settled: the public URL was
// set, or the phase was skipped because no subdomain is registered. Only
// a failed proxy setup returns false.
func (o *Orchestrator) publish(ctx context.Context, req AcceptRequest, id, compose string, exec Executor) bool {
	subdomain := o.adapter.LookupSubdomain(ctx, req.InstanceHash)
	if subdomain == "" {
		o.store.Update(id, func(d *models.Deployment) { d.Warning = "publish skipped: no subdomain registered" })
		o.eventLog.Record(id, "publish", "skipped", "no subdomain")
		return true
	}

	localPort := ResolveLocalPort(compose, req.TunnelPort)
	result := exec.SetupCaddyProxy(ctx, localPort, subdomain, o.baseDomain)
	if result.Status != "running" {
		o.store.Update(id, func(d *models.Deployment) { d.Warning = fmt.Sprintf("publish failed: %s", result.Error) })
		o.eventLog.Record(id, "publish", "failed", result.Error)
		return false
	}

	o.store.Update(id, func(d *models.Deployment) { d.PublicURL = result.URL })
	o.eventLog.Record(id, "publish", "ok", result.URL)
	return true
}

func (o *Orchestrator) revoke(ctx context.Context, id string, req AcceptRequest, exec Executor) {
	if o.deployKey == "" {
		return
	}
	if o.revokeQueue != nil {
		if err := o.revokeQueue.EnqueueRevoke(id, req.SSHHost, req.SSHPort, req.SSHUser); err != nil {
			o.store.Update(id, func(d *models.Deployment) { d.Warning = fmt.Sprintf("revoke enqueue failed: %v", err) })
			o.eventLog.Record(id, "revoke", "enqueue_failed", err.Error())
		}
		return
	}
	if err := exec.RevokeDeployKey(ctx, o.deployKey); err != nil {
		o.store.Update(id, func(d *models.Deployment) { d.Warning = fmt.Sprintf("revoke failed: %v", err) })
		o.eventLog.Record(id, "revoke", "failed", err.Error())
		return
	}
	o.eventLog.Record(id, "revoke", "ok", "")
}

func (o *Orchestrator) fail(id, reason string) {
	o.store.Update(id, func(d *models.Deployment) {
		d.Status = models.StatusFailed
		d.LastError = reason
	})
	o.setStep(id, models.StepDone)
}

func (o *Orchestrator) lockHost(host string, port int) func() {
	key := fmt.Sprintf("%s:%d", host, port)
	v, _ := o.hostLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (o *Orchestrator) setStep(id, step string) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if j, ok := o.jobs[id]; ok {
		j.Step = step
	}
}

func (o *Orchestrator) setJob(id string, j *models.Job) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	o.jobs[id] = j
}

// Job returns a copy of the in-memory job for id, if any.
func (o *Orchestrator) Job(id string) (models.Job, bool) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return *j, true
}

// NotifyAllocationStart forwards a client-driven start notification,
// debounced to at most once per 5s per instance — the upstream call is
// idempotent, the debounce just avoids redundant traffic when a client
// retries faster than the recommended ~40s interval.
func (o *Orchestrator) NotifyAllocationStart(ctx context.Context, instanceID, crnURL string) {
	o.notifyMu.Lock()
	last, seen := o.lastNotified[instanceID]
	if seen && time.Since(last) < 5*time.Second {
		o.notifyMu.Unlock()
		return
	}
	o.lastNotified[instanceID] = time.Now()
	o.notifyMu.Unlock()

	o.adapter.NotifyNodeStart(ctx, crnURL, instanceID)
}

// LookupAllocation resolves a VM's IPv4 and SSH port for instanceID.
func (o *Orchestrator) LookupAllocation(ctx context.Context, instanceID, crnURL string) network.Allocation {
	return o.adapter.LookupAllocation(ctx, instanceID, crnURL)
}

func toContainerSummaries(in []sshexec.ContainerInfo) []models.ContainerSummary {
	if in == nil {
		return nil
	}
	out := make([]models.ContainerSummary, len(in))
	for i, c := range in {
		out[i] = models.ContainerSummary{Name: c.Name, Service: c.Service, State: c.State, Status: c.Status, Image: c.Image}
	}
	return out
}

func randomPassword() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Store exposes the underlying Deployment Store for read-only HTTP
// handlers (status, list, stop, delete) that don't need the full state
// machine.
func (o *Orchestrator) Store() *store.Store { return o.store }

// Executor builds a fresh Executor for ad hoc lifecycle operations
// (stop/remove) outside the background job, against an existing
// deployment's host.
func (o *Orchestrator) Executor(d *models.Deployment) Executor {
	return o.newExecutor(d.SSHHost, d.SSHPort, "root")
}
