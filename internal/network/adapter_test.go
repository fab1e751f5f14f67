package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestLookupSubdomainReturnsValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"subdomain":"tenant-7"}}`))
	}))
	defer srv.Close()

	a := New("", "", srv.URL, "", zap.NewNop())
	got := a.LookupSubdomain(context.Background(), "abc123")
	if got != "tenant-7" {
		t.Fatalf("LookupSubdomain = %q", got)
	}
}

func TestLookupSubdomainFailsOpenToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := New("", "", srv.URL, "", zap.NewNop())
	got := a.LookupSubdomain(context.Background(), "abc123")
	if got != "" {
		t.Fatalf("expected empty result on failure, got %q", got)
	}
}

func TestGetBalanceUnknownSentinelOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := New("", "", "", srv.URL, zap.NewNop())
	bal := a.GetBalance(context.Background(), "0xabc")
	if bal.Balance != unknownSentinel || bal.Credit != unknownSentinel {
		t.Fatalf("GetBalance = %+v", bal)
	}
}

func TestListComputeNodesFiltersAndSorts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"nodes":[
			{"hash":"a","address":"https://a","payment_receiver_address":"0x1","score":0.5},
			{"hash":"b","address":"https://b","payment_receiver_address":"","score":0.9},
			{"hash":"c","address":"https://c","payment_receiver_address":"0x3","score":0.9}
		]}`))
	}))
	defer srv.Close()

	a := New("", srv.URL, "", "", zap.NewNop())
	nodes := a.ListComputeNodes(context.Background())
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes after filtering, got %d", len(nodes))
	}
	if nodes[0].Hash != "c" || nodes[0].Score != 0.9 {
		t.Fatalf("expected highest score first, got %+v", nodes[0])
	}
}

func TestNotifyNodeStartReturnsObservedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a := New("", "", "", "", zap.NewNop())
	status := a.NotifyNodeStart(context.Background(), srv.URL, "abc123")
	if status != http.StatusAccepted {
		t.Fatalf("NotifyNodeStart status = %d", status)
	}
}

func TestNotifyNodeStartSwallowsTransportError(t *testing.T) {
	a := New("", "", "", "", zap.NewNop())
	status := a.NotifyNodeStart(context.Background(), "http://127.0.0.1:0", "abc123")
	if status != 0 {
		t.Fatalf("expected 0 on transport error, got %d", status)
	}
}
