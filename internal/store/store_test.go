package store

import (
	"path/filepath"
	"testing"

	"github.com/alephdeploy/control-plane/internal/models"
)

func TestAddGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	d := &models.Deployment{ID: "app-abcd1234-1700000000", Owner: "0xabc", AppID: "nginx-demo", Status: models.StatusDeploying}
	if err := s.Add(d); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got := s.Get(d.ID)
	if got == nil || got.Owner != "0xabc" || got.Status != models.StatusDeploying {
		t.Fatalf("Get after Add = %+v", got)
	}
}

func TestUpdateChangesStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.json")
	s, _ := Open(path)
	d := &models.Deployment{ID: "d1", Owner: "0xabc", Status: models.StatusDeploying}
	s.Add(d)

	_, err := s.Update("d1", func(d *models.Deployment) { d.Status = models.StatusComplete })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if got := s.Get("d1"); got.Status != models.StatusComplete {
		t.Fatalf("status after update = %s", got.Status)
	}
}

func TestReloadReproducesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.json")
	s1, _ := Open(path)
	s1.Add(&models.Deployment{ID: "d1", Owner: "0xabc", Status: models.StatusDeploying})
	s1.Add(&models.Deployment{ID: "d2", Owner: "0xdef", Status: models.StatusComplete})

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	if len(s2.ListAll()) != 2 {
		t.Fatalf("expected 2 records after reload, got %d", len(s2.ListAll()))
	}
	if got := s2.Get("d1"); got == nil || got.Owner != "0xabc" {
		t.Fatalf("d1 not reproduced: %+v", got)
	}
	if got := s2.ListByOwner("0xdef"); len(got) != 1 || got[0].ID != "d2" {
		t.Fatalf("ListByOwner mismatch: %+v", got)
	}
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open missing file: %v", err)
	}
	if len(s.ListAll()) != 0 {
		t.Fatalf("expected empty store, got %d", len(s.ListAll()))
	}
}

func TestUpdateUnknownIDReturnsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.json")
	s, _ := Open(path)
	got, err := s.Update("missing", func(d *models.Deployment) {})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown id, got %+v", got)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.json")
	s, _ := Open(path)
	s.Add(&models.Deployment{ID: "d1", Owner: "0xabc"})

	if err := s.Remove("d1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove("d1"); err != nil {
		t.Fatalf("Remove again: %v", err)
	}
	if s.Get("d1") != nil {
		t.Fatalf("expected d1 gone")
	}
}
