package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
)

// maxSearchResults caps entity search result lists.
const maxSearchResults = 10

// CRMClient talks to the CRM HTTP API. All operations are read-only.
type CRMClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewCRMClient creates a CRM client.
func NewCRMClient(baseURL, apiKey string, log *logger.Logger) *CRMClient {
	return &CRMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: log,
	}
}

// RegisterCRMTools adds search_entities and get_contacts to the registry.
func RegisterCRMTools(r *Registry, c *CRMClient) {
	r.Register(&Tool{
		Spec: model.ToolSpec{
			Name: "search_entities",
			Description: "Search CRM organizations by name or business identifier. Matching is fuzzy for names " +
				"and exact for business identifiers (both \"1234567-8\" and \"12345678\" forms are accepted). " +
				"fields is an optional comma-separated projection, e.g. \"id,name,industry\"; omit it for the " +
				"default projection (id, name, business_id, industry). Matches also carry analytics_business_id, " +
				"the separator-free form used by the analytics database. Returns at most 10 matches. " +
				`Example: {"searchTerm": "Acme", "fields": "id,name,industry"}`,
			Properties: map[string]any{
				"searchTerm": map[string]any{
					"type":        "string",
					"description": "Organization name fragment or business identifier.",
				},
				"fields": map[string]any{
					"type":        "string",
					"description": "Comma-separated list of fields to return. Optional.",
				},
			},
			Required: []string{"searchTerm"},
		},
		Hint:    "try a shorter name fragment, or the plain business identifier without formatting",
		Handler: c.handleSearchEntities,
	})

	r.Register(&Tool{
		Spec: model.ToolSpec{
			Name: "get_contacts",
			Description: "List contact persons for one CRM organization. entityId is the numeric organization id " +
				"returned by search_entities. fields is an optional comma-separated projection, e.g. " +
				"\"name,title,email\"; omit it for the default projection (name, title, email, phone). " +
				`Example: {"entityId": 42, "fields": "name,email"}`,
			Properties: map[string]any{
				"entityId": map[string]any{
					"type":        "integer",
					"description": "CRM organization id.",
				},
				"fields": map[string]any{
					"type":        "string",
					"description": "Comma-separated list of fields to return. Optional.",
				},
			},
			Required: []string{"entityId"},
		},
		Hint:    "entityId must be the numeric id from search_entities, not a business identifier",
		Handler: c.handleGetContacts,
	})
}

func (c *CRMClient) handleSearchEntities(ctx context.Context, args map[string]any) (any, error) {
	term := strings.TrimSpace(stringArg(args, "searchTerm"))
	if term == "" {
		return nil, errors.New("searchTerm is required")
	}

	// The CRM keys organizations by the separator form of the business id
	// while the analytics store drops the separator. Normalize here so the
	// model never has to get the format right.
	if id, ok := NormalizeBusinessID(term); ok {
		term = id
	}

	query := url.Values{"search": {term}}
	if fields := stringArg(args, "fields"); fields != "" {
		query.Set("fields", fields)
	}

	var payload struct {
		Organizations []map[string]any `json:"organizations"`
	}
	if err := c.getJSON(ctx, "/api/v1/organizations", query, &payload); err != nil {
		return nil, err
	}

	matches := payload.Organizations
	truncated := false
	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
		truncated = true
	}

	// Attach the separator-free form so query_analytics can correlate a
	// match against the analytics store without reformatting.
	for _, org := range matches {
		if bid, ok := org["business_id"].(string); ok {
			if stripped, ok := StripBusinessID(bid); ok {
				org["analytics_business_id"] = stripped
			}
		}
	}

	return map[string]any{
		"matches":    matches,
		"matchCount": len(matches),
		"truncated":  truncated,
	}, nil
}

func (c *CRMClient) handleGetContacts(ctx context.Context, args map[string]any) (any, error) {
	entityID, ok := intArg(args, "entityId")
	if !ok || entityID <= 0 {
		return nil, errors.New("entityId must be a positive integer")
	}

	query := url.Values{}
	if fields := stringArg(args, "fields"); fields != "" {
		query.Set("fields", fields)
	}

	var payload struct {
		Contacts []map[string]any `json:"contacts"`
	}
	path := "/api/v1/organizations/" + strconv.Itoa(entityID) + "/contacts"
	if err := c.getJSON(ctx, path, query, &payload); err != nil {
		return nil, err
	}

	return map[string]any{
		"contacts":     payload.Contacts,
		"contactCount": len(payload.Contacts),
	}, nil
}

// getJSON performs an authenticated GET against the CRM API.
func (c *CRMClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build CRM request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("CRM request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read CRM response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("CRM returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode CRM response: %w", err)
	}

	return nil
}

var businessIDPattern = regexp.MustCompile(`^\d{7}-?\d$`)

// NormalizeBusinessID converts a business identifier to the CRM's
// separator form ("1234567-8"). The analytics store carries the same
// identifier without the separator. Returns false when the input is not a
// business identifier at all.
func NormalizeBusinessID(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !businessIDPattern.MatchString(trimmed) {
		return "", false
	}
	digits := strings.ReplaceAll(trimmed, "-", "")
	return digits[:7] + "-" + digits[7:], true
}

// StripBusinessID converts a business identifier to the analytics store's
// separator-free form ("12345678").
func StripBusinessID(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !businessIDPattern.MatchString(trimmed) {
		return "", false
	}
	return strings.ReplaceAll(trimmed, "-", ""), true
}
