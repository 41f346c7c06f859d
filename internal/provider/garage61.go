package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// racingKeywords gate CanHandle for the Garage61 provider.
var racingKeywords = []string{
	"garage61", "racing", "race", "driver", "track", "car", "lap", "team",
	"iracing", "setup", "telemetry", "ghost lap", "statistics", "driving",
	"platform", "season", "oval", "road", "rating",
}

// endpointKeywords map query phrasing to spec operation ids. First match in
// this order wins.
var endpointKeywords = []struct {
	id       string
	keywords []string
}{
	{"getTeams", []string{"list teams", "all teams", "team list", "teams"}},
	{"getTeam", []string{"team info", "team details", "specific team"}},
	{"getTracks", []string{"tracks", "track list", "available tracks"}},
	{"findTracks", []string{"find tracks", "search tracks"}},
	{"getTeamStatistics", []string{"team statistics", "team stats", "driving statistics"}},
	{"getTeamDataPacks", []string{"data packs", "setup packs", "team data"}},
	{"getTeamDataPack", []string{"specific data pack", "data pack details"}},
	{"getPlatforms", []string{"platforms", "platform list", "available platforms"}},
}

// endpoint is one operation extracted from the API spec document.
type endpoint struct {
	Path    string
	Method  string
	Summary string
}

// Garage61 serves racing data from the Garage61 platform. Without an API
// key it degrades to informative sample payloads instead of failing.
type Garage61 struct {
	apiKey     string
	baseURL    string
	endpoints  map[string]endpoint
	httpClient *http.Client
	log        zerolog.Logger
}

// NewGarage61 builds the provider, loading the endpoint table from the API
// spec document at specPath (JSON or YAML). A missing or unreadable spec
// falls back to a built-in endpoint table.
func NewGarage61(apiKey, baseURL, specPath string, log zerolog.Logger) *Garage61 {
	g := &Garage61{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
	eps, err := loadSpec(specPath)
	if err != nil {
		log.Warn().Err(err).Str("path", specPath).Msg("using built-in endpoint table")
		eps = builtinEndpoints()
	}
	g.endpoints = eps
	log.Info().Int("endpoints", len(eps)).Msg("garage61 endpoint table loaded")
	return g
}

// apiSpec is the subset of an OpenAPI document the provider reads.
type apiSpec struct {
	Paths map[string]map[string]struct {
		OperationID string `yaml:"operationId" json:"operationId"`
		Summary     string `yaml:"summary" json:"summary"`
	} `yaml:"paths" json:"paths"`
}

func loadSpec(path string) (map[string]endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var spec apiSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &spec)
	default:
		err = json.Unmarshal(data, &spec)
	}
	if err != nil {
		return nil, fmt.Errorf("parse api spec: %w", err)
	}

	eps := make(map[string]endpoint)
	for path, ops := range spec.Paths {
		for method, op := range ops {
			id := op.OperationID
			if id == "" {
				id = method + "_" + path
			}
			eps[id] = endpoint{Path: path, Method: strings.ToLower(method), Summary: op.Summary}
		}
	}
	if len(eps) == 0 {
		return nil, fmt.Errorf("api spec has no paths")
	}
	return eps, nil
}

func builtinEndpoints() map[string]endpoint {
	return map[string]endpoint{
		"getTeams":          {Path: "/teams", Method: "get", Summary: "List teams"},
		"getTeam":           {Path: "/teams/{slug}", Method: "get", Summary: "Get one team"},
		"getTracks":         {Path: "/tracks", Method: "get", Summary: "List tracks"},
		"findTracks":        {Path: "/tracks/search", Method: "get", Summary: "Search tracks"},
		"getTeamStatistics": {Path: "/teams/{slug}/statistics", Method: "get", Summary: "Team driving statistics"},
		"getTeamDataPacks":  {Path: "/teams/{slug}/datapacks", Method: "get", Summary: "List team data packs"},
		"getTeamDataPack":   {Path: "/teams/{slug}/datapacks/{id}", Method: "get", Summary: "Get one data pack"},
		"getPlatforms":      {Path: "/platforms", Method: "get", Summary: "List platforms"},
	}
}

func (g *Garage61) Name() string { return "Garage61" }

func (g *Garage61) Description() string {
	return "Racing data from Garage61 platform, including teams, drivers, tracks, cars, " +
		"lap data, setups, and driving statistics. Use this to answer questions about " +
		"racing data, team performance, and driver stats."
}

// CanHandle claims any query mentioning a racing keyword.
func (g *Garage61) CanHandle(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range racingKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Query maps the text to an endpoint and fetches it. Without an API key it
// returns sample data so the feature is demonstrable unauthenticated.
func (g *Garage61) Query(ctx context.Context, query string) (Result, error) {
	if g.apiKey == "" {
		return Result{
			Message: "I can access Garage61 racing data, but no API key is configured. " +
				"Set GARAGE61_API_KEY to enable live lookups.",
			Items: g.endpointSummary(),
			Note:  "You can ask questions about racing data such as teams, drivers, tracks, cars, and statistics.",
		}, nil
	}

	ep, ok := g.mapQuery(query)
	if !ok {
		return Result{
			Message: "I understand you're asking about racing data, but I couldn't determine which " +
				"specific information you need. Could you be more specific?",
			Note: "You can ask about teams, drivers, tracks, cars, lap times, and driving statistics.",
		}, nil
	}
	return g.call(ctx, ep)
}

// mapQuery picks the endpoint whose keywords appear in the query, defaulting
// to statistics for stats-shaped queries and the team list otherwise.
func (g *Garage61) mapQuery(query string) (endpoint, bool) {
	q := strings.ToLower(query)
	for _, m := range endpointKeywords {
		ep, known := g.endpoints[m.id]
		if !known {
			continue
		}
		for _, kw := range m.keywords {
			if strings.Contains(q, kw) {
				return ep, true
			}
		}
	}
	if strings.Contains(q, "statistics") || strings.Contains(q, "stats") {
		if ep, ok := g.endpoints["getTeamStatistics"]; ok {
			return ep, true
		}
	}
	ep, ok := g.endpoints["getTeams"]
	return ep, ok
}

func (g *Garage61) call(ctx context.Context, ep endpoint) (Result, error) {
	if strings.Contains(ep.Path, "{") {
		// Parameterized endpoints need ids we cannot extract reliably from
		// free text; describe the endpoint instead of guessing.
		return Result{
			Message: fmt.Sprintf("That lookup needs a specific identifier (%s). Tell me which team or item you mean.", ep.Path),
		}, nil
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(ep.Method), g.baseURL+ep.Path, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("garage61 request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Err: fmt.Sprintf("Garage61 returned status %d for %s", resp.StatusCode, ep.Path)}, nil
	}

	var payload struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode garage61 response: %w", err)
	}
	return Result{Items: payload.Items}, nil
}

func (g *Garage61) endpointSummary() []map[string]any {
	out := make([]map[string]any, 0, len(g.endpoints))
	for id, ep := range g.endpoints {
		out = append(out, map[string]any{
			"id":      id,
			"path":    ep.Path,
			"method":  ep.Method,
			"summary": ep.Summary,
		})
	}
	return out
}
