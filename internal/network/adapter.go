// Package network implements the External-Network Adapter: thin, typed,
// stateless wrappers over the decentralized network's scheduler,
// compute-node, gateway, and balance HTTP collaborators. Every call has
// an explicit timeout and swallows transport errors into empty/nil
// results — callers own retry policy.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Adapter is the External-Network Adapter.
type Adapter struct {
	httpClient *http.Client
	logger     *zap.Logger

	schedulerBaseURL string
	crnListURL       string
	gatewayBaseURL   string
	balanceBaseURL   string
}

func New(schedulerBaseURL, crnListURL, gatewayBaseURL, balanceBaseURL string, logger *zap.Logger) *Adapter {
	return &Adapter{
		httpClient:       &http.Client{},
		logger:           logger,
		schedulerBaseURL: schedulerBaseURL,
		crnListURL:       crnListURL,
		gatewayBaseURL:   gatewayBaseURL,
		balanceBaseURL:   balanceBaseURL,
	}
}

// Balance is the unknown-sentinel-capable result of GetBalance.
type Balance struct {
	Balance string
	Credit  string
	Locked  string
}

const unknownSentinel = "unknown"

// GetBalance fetches a wallet's balance display. Any failure degrades to
// the unknown sentinel rather than propagating an error.
func (a *Adapter) GetBalance(ctx context.Context, address string) Balance {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/v0/addresses/%s/balance", a.balanceBaseURL, address)
	var body struct {
		Balance float64 `json:"balance"`
		Credit  float64 `json:"credit_balance"`
		Locked  float64 `json:"locked_amount"`
	}
	if err := a.getJSON(ctx, url, &body); err != nil {
		a.logger.Warn("balance lookup failed", zap.String("address", address), zap.Error(err))
		return Balance{Balance: unknownSentinel, Credit: unknownSentinel, Locked: unknownSentinel}
	}
	return Balance{
		Balance: fmt.Sprintf("%v", body.Balance),
		Credit:  fmt.Sprintf("%v", body.Credit),
		Locked:  fmt.Sprintf("%v", body.Locked),
	}
}

// SSHKey is one registered SSH public key on the network.
type SSHKey struct {
	PublicKey string `json:"key"`
	Label     string `json:"label"`
	SourceHash string `json:"item_hash"`
	Timestamp int64  `json:"time"`
}

// ListSSHKeys returns the SSH keys an address has registered on the
// network. Empty on any failure.
func (a *Adapter) ListSSHKeys(ctx context.Context, address string) []SSHKey {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/v0/messages.json?addresses=%s&channels=ALEPH-CLOUDSOLUTIONS&msgType=STORE", a.schedulerBaseURL, address)
	var body struct {
		Messages []struct {
			Content struct {
				Key   string `json:"key"`
				Label string `json:"label"`
			} `json:"content"`
			ItemHash string `json:"item_hash"`
			Time     int64  `json:"time"`
		} `json:"messages"`
	}
	if err := a.getJSON(ctx, url, &body); err != nil {
		a.logger.Warn("ssh key lookup failed", zap.String("address", address), zap.Error(err))
		return nil
	}

	out := make([]SSHKey, 0, len(body.Messages))
	for _, m := range body.Messages {
		out = append(out, SSHKey{
			PublicKey:  m.Content.Key,
			Label:      m.Content.Label,
			SourceHash: m.ItemHash,
			Timestamp:  m.Time,
		})
	}
	return out
}

// ComputeNode is one entry in the compute-node resource-discovery list.
type ComputeNode struct {
	Hash              string  `json:"hash"`
	Name              string  `json:"name"`
	URL               string  `json:"address"`
	PaymentReceiver   string  `json:"payment_receiver_address"`
	Score             float64 `json:"score"`
}

// ListComputeNodes returns compute nodes that have a configured payment
// address, sorted by score descending. Nodes are not filtered by the
// virtualization types they support. Empty on any failure.
func (a *Adapter) ListComputeNodes(ctx context.Context) []ComputeNode {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var body struct {
		Nodes []struct {
			Hash                   string  `json:"hash"`
			Name                   string  `json:"name"`
			Address                string  `json:"address"`
			PaymentReceiverAddress string  `json:"payment_receiver_address"`
			Score                  float64 `json:"score"`
		} `json:"nodes"`
	}
	if err := a.getJSON(ctx, a.crnListURL, &body); err != nil {
		a.logger.Warn("compute node list failed", zap.Error(err))
		return nil
	}

	out := make([]ComputeNode, 0, len(body.Nodes))
	for _, n := range body.Nodes {
		if n.PaymentReceiverAddress == "" {
			continue
		}
		out = append(out, ComputeNode{
			Hash:            n.Hash,
			Name:            n.Name,
			URL:             n.Address,
			PaymentReceiver: n.PaymentReceiverAddress,
			Score:           n.Score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Allocation is the result of an IP/port discovery lookup.
type Allocation struct {
	Allocated bool
	IPv4      string
	SSHPort   int
}

// LookupAllocation resolves a VM's IPv4 and SSH port for instanceID.
// Tries the preferred node's execution-listing endpoint (versioned, then
// unversioned), then falls back to the scheduler's allocation endpoint.
func (a *Adapter) LookupAllocation(ctx context.Context, instanceID, preferredNodeURL string) Allocation {
	if preferredNodeURL != "" {
		for _, path := range []string{"/v2/about/executions/list", "/about/executions/list"} {
			if alloc, ok := a.lookupFromNode(ctx, preferredNodeURL, path, instanceID); ok {
				return alloc
			}
		}
	}
	return a.lookupFromScheduler(ctx, instanceID)
}

func (a *Adapter) lookupFromNode(ctx context.Context, nodeURL, path, instanceID string) (Allocation, bool) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	url := nodeURL + path
	var body map[string]struct {
		Networking struct {
			MappedPorts map[string]struct {
				Host int `json:"host"`
			} `json:"mapped_ports"`
			IPv4 string `json:"ipv4"`
		} `json:"networking"`
	}
	if err := a.getJSON(ctx, url, &body); err != nil {
		return Allocation{}, false
	}

	entry, ok := body[instanceID]
	if !ok {
		return Allocation{}, false
	}
	port, ok := entry.Networking.MappedPorts["22"]
	if !ok {
		return Allocation{}, false
	}
	return Allocation{Allocated: true, IPv4: entry.Networking.IPv4, SSHPort: port.Host}, true
}

func (a *Adapter) lookupFromScheduler(ctx context.Context, instanceID string) Allocation {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/v0/allocation/%s", a.schedulerBaseURL, instanceID)
	var body struct {
		Allocated bool   `json:"allocated"`
		IPv6      string `json:"vm_ipv6"`
	}
	if err := a.getJSON(ctx, url, &body); err != nil {
		return Allocation{}
	}
	return Allocation{Allocated: body.Allocated}
}

// LookupSubdomain resolves the gateway's subdomain for instanceID, or
// "" if none is registered or the lookup fails.
func (a *Adapter) LookupSubdomain(ctx context.Context, instanceID string) string {
	if instanceID == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/hash/%s", a.gatewayBaseURL, instanceID)
	var body struct {
		Data struct {
			Subdomain string `json:"subdomain"`
		} `json:"data"`
	}
	if err := a.getJSON(ctx, url, &body); err != nil {
		a.logger.Warn("gateway lookup failed", zap.String("instance_id", instanceID), zap.Error(err))
		return ""
	}
	return body.Data.Subdomain
}

// NotifyNodeStart sends a best-effort start notification to a compute
// node's control endpoint. Returns the observed HTTP status, 0 on
// transport error. Never returns an error to the caller.
func (a *Adapter) NotifyNodeStart(ctx context.Context, nodeURL, instanceID string) int {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/v2/operations/%s/start", nodeURL, instanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return 0
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Warn("notify node start failed", zap.String("node_url", nodeURL), zap.Error(err))
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func (a *Adapter) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("network: %s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
