package commands

import (
	"testing"

	"github.com/policywarden/warden/pkg/state"
)

func TestAdmissionRequest(t *testing.T) {
	rec := &state.ResourceRecord{
		ID:         "rec-1",
		Scope:      "/subscriptions/s-dev",
		Type:       "Microsoft.Compute/virtualMachines",
		Name:       "vm-app",
		Location:   "eastus",
		Properties: `{"kind":"linux","tags":{"env":"prod"}}`,
	}

	req, err := admissionRequest(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Scope.String() != "/subscriptions/s-dev" {
		t.Errorf("Scope = %s", req.Scope)
	}
	if req.Type != rec.Type || req.Name != rec.Name || req.Location != rec.Location {
		t.Errorf("identity fields not carried over: %+v", req)
	}
	if req.Properties["kind"] != "linux" {
		t.Errorf("Properties[kind] = %v", req.Properties["kind"])
	}
	tags, ok := req.Properties["tags"].(map[string]interface{})
	if !ok || tags["env"] != "prod" {
		t.Errorf("Properties[tags] = %v", req.Properties["tags"])
	}
}

func TestAdmissionRequestEmptyProperties(t *testing.T) {
	rec := &state.ResourceRecord{
		ID:    "rec-2",
		Scope: "/subscriptions/s-dev",
		Type:  "Microsoft.Storage/storageAccounts",
		Name:  "stgapp",
	}

	req, err := admissionRequest(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Properties != nil {
		t.Errorf("Properties = %v, want nil", req.Properties)
	}
}

func TestAdmissionRequestBadRecord(t *testing.T) {
	badScope := &state.ResourceRecord{ID: "rec-3", Scope: "not-a-scope", Type: "t", Name: "n"}
	if _, err := admissionRequest(badScope); err == nil {
		t.Error("invalid scope should fail")
	}

	badProps := &state.ResourceRecord{
		ID: "rec-4", Scope: "/subscriptions/s-dev", Type: "t", Name: "n",
		Properties: "{not json",
	}
	if _, err := admissionRequest(badProps); err == nil {
		t.Error("invalid properties blob should fail")
	}
}
