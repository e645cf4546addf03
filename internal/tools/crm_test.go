package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deckforge-ai/presentation-platform/pkg/logger"
)

func TestNormalizeBusinessID(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"1234567-8", "1234567-8", true},
		{"12345678", "1234567-8", true},
		{" 12345678 ", "1234567-8", true},
		{"123456-78", "", false},
		{"1234567", "", false},
		{"123456789", "", false},
		{"Acme Oy", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeBusinessID(tt.in)
			if ok != tt.valid {
				t.Fatalf("valid: got %v, want %v", ok, tt.valid)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripBusinessID(t *testing.T) {
	if got, ok := StripBusinessID("1234567-8"); !ok || got != "12345678" {
		t.Errorf("got %q, %v", got, ok)
	}
	if _, ok := StripBusinessID("not an id"); ok {
		t.Error("accepted a non-identifier")
	}
}

func TestSearchEntitiesNormalizesBusinessID(t *testing.T) {
	var gotSearch string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/organizations" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		gotSearch = r.URL.Query().Get("search")
		json.NewEncoder(w).Encode(map[string]any{
			"organizations": []map[string]any{
				{"id": 1, "name": "Acme Oy", "business_id": "1234567-8"},
			},
		})
	}))
	defer srv.Close()

	c := NewCRMClient(srv.URL, "test-key", logger.NewNop())
	data, err := c.handleSearchEntities(context.Background(), map[string]any{
		"searchTerm": "12345678", // separator-free analytics form
	})
	if err != nil {
		t.Fatalf("handleSearchEntities: %v", err)
	}

	if gotSearch != "1234567-8" {
		t.Errorf("search term sent to CRM: got %q, want separator form", gotSearch)
	}

	payload := data.(map[string]any)
	if payload["matchCount"] != 1 {
		t.Errorf("matchCount: got %v", payload["matchCount"])
	}

	// Matches carry the separator-free form for analytics correlation.
	match := payload["matches"].([]map[string]any)[0]
	if match["analytics_business_id"] != "12345678" {
		t.Errorf("analytics_business_id: got %v", match["analytics_business_id"])
	}
}

func TestSearchEntitiesCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgs := make([]map[string]any, 15)
		for i := range orgs {
			orgs[i] = map[string]any{"id": i, "name": fmt.Sprintf("Org %d", i)}
		}
		json.NewEncoder(w).Encode(map[string]any{"organizations": orgs})
	}))
	defer srv.Close()

	c := NewCRMClient(srv.URL, "", logger.NewNop())
	data, err := c.handleSearchEntities(context.Background(), map[string]any{"searchTerm": "Org"})
	if err != nil {
		t.Fatalf("handleSearchEntities: %v", err)
	}

	payload := data.(map[string]any)
	if payload["matchCount"] != maxSearchResults {
		t.Errorf("matchCount: got %v, want %d", payload["matchCount"], maxSearchResults)
	}
	if payload["truncated"] != true {
		t.Error("truncated flag not set")
	}
}

func TestGetContacts(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/v1/organizations/42/contacts" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"contacts": []map[string]any{
				{"name": "Kim Virtanen", "email": "kim@example.com"},
			},
		})
	}))
	defer srv.Close()

	c := NewCRMClient(srv.URL, "secret", logger.NewNop())
	data, err := c.handleGetContacts(context.Background(), map[string]any{
		"entityId": float64(42),
	})
	if err != nil {
		t.Fatalf("handleGetContacts: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("auth header: got %q", gotAuth)
	}
	payload := data.(map[string]any)
	if payload["contactCount"] != 1 {
		t.Errorf("contactCount: got %v", payload["contactCount"])
	}
}

func TestGetContactsRequiresEntityID(t *testing.T) {
	c := NewCRMClient("http://unused", "", logger.NewNop())
	if _, err := c.handleGetContacts(context.Background(), map[string]any{}); err == nil {
		t.Error("missing entityId was accepted")
	}
}

func TestCRMErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"upstream down"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewCRMClient(srv.URL, "", logger.NewNop())
	if _, err := c.handleSearchEntities(context.Background(), map[string]any{"searchTerm": "Acme"}); err == nil {
		t.Error("non-200 response was accepted")
	}
}
