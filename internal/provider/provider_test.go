package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempSpec(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakeProvider struct {
	name    string
	handles bool
	result  Result
	err     error
}

func (f fakeProvider) Name() string              { return f.name }
func (f fakeProvider) Description() string       { return "fake " + f.name }
func (f fakeProvider) CanHandle(string) bool     { return f.handles }
func (f fakeProvider) Query(context.Context, string) (Result, error) {
	return f.result, f.err
}

func TestRegistryQueriesOnlyClaimingProviders(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register(fakeProvider{name: "yes", handles: true, result: Result{Message: "hit"}})
	r.Register(fakeProvider{name: "no", handles: false, result: Result{Message: "miss"}})

	results := r.Query(context.Background(), "anything")
	require.Len(t, results, 1)
	assert.Equal(t, "hit", results["yes"].Message)
}

func TestRegistryProviderErrorBecomesErrResult(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register(fakeProvider{name: "boom", handles: true, err: errors.New("backend down")})

	results := r.Query(context.Background(), "anything")
	require.Contains(t, results, "boom")
	assert.Equal(t, "backend down", results["boom"].Err)
}

func TestCapabilitiesPrompt(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	assert.Empty(t, r.CapabilitiesPrompt())

	r.Register(fakeProvider{name: "One"})
	r.Register(fakeProvider{name: "Two"})
	p := r.CapabilitiesPrompt()
	assert.Contains(t, p, "I have access to the following data sources:")
	assert.Contains(t, p, "- One: fake One")
	assert.Contains(t, p, "- Two: fake Two")
}

func TestResultFormat(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   []string
		not    []string
	}{
		{
			name:   "error wins",
			result: Result{Err: "it broke", Message: "ignored"},
			want:   []string{"Error: it broke"},
			not:    []string{"ignored"},
		},
		{
			name:   "message only",
			result: Result{Message: "plain answer"},
			want:   []string{"plain answer"},
		},
		{
			name: "items with sorted keys",
			result: Result{Items: []map[string]any{
				{"name": "Spa", "id": 1},
			}},
			want: []string{"• id: 1, name: Spa"},
		},
		{
			name:   "note appended",
			result: Result{Message: "data", Note: "sample only"},
			want:   []string{"data\nsample only"},
		},
		{
			name:   "empty",
			result: Result{},
			want:   []string{"No results."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.result.Format()
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			for _, n := range tt.not {
				assert.NotContains(t, got, n)
			}
		})
	}
}

func TestGarage61CanHandle(t *testing.T) {
	g := NewGarage61("", "https://example.test/api", "nonexistent.json", zerolog.Nop())
	assert.True(t, g.CanHandle("show me the lap times"))
	assert.True(t, g.CanHandle("iRacing team statistics please"))
	assert.False(t, g.CanHandle("what's the weather like"))
}

func TestGarage61WithoutKeyReturnsSampleInfo(t *testing.T) {
	g := NewGarage61("", "https://example.test/api", "nonexistent.json", zerolog.Nop())
	res, err := g.Query(context.Background(), "list teams")
	require.NoError(t, err)
	assert.Contains(t, res.Message, "no API key")
	assert.NotEmpty(t, res.Items, "endpoint summary expected")
	assert.NotEmpty(t, res.Note)
}

func TestGarage61MapQuery(t *testing.T) {
	g := NewGarage61("", "https://example.test/api", "nonexistent.json", zerolog.Nop())

	ep, ok := g.mapQuery("show me all teams")
	require.True(t, ok)
	assert.Equal(t, "/teams", ep.Path)

	ep, ok = g.mapQuery("available tracks on the service")
	require.True(t, ok)
	assert.Equal(t, "/tracks", ep.Path)

	ep, ok = g.mapQuery("give me some stats")
	require.True(t, ok)
	assert.Contains(t, ep.Path, "statistics")

	// Unrecognized racing query defaults to the team list.
	ep, ok = g.mapQuery("something about racing generally")
	require.True(t, ok)
	assert.Equal(t, "/teams", ep.Path)
}

func TestLoadSpecJSONAndYAML(t *testing.T) {
	jsonSpec := `{
		"paths": {
			"/teams": {"get": {"operationId": "getTeams", "summary": "List teams"}},
			"/tracks": {"get": {"operationId": "getTracks", "summary": "List tracks"}}
		}
	}`
	yamlSpec := strings.Join([]string{
		"paths:",
		"  /teams:",
		"    get:",
		"      operationId: getTeams",
		"      summary: List teams",
	}, "\n")

	jsonPath := writeTempSpec(t, "spec.json", jsonSpec)
	eps, err := loadSpec(jsonPath)
	require.NoError(t, err)
	assert.Len(t, eps, 2)
	assert.Equal(t, "/teams", eps["getTeams"].Path)

	yamlPath := writeTempSpec(t, "spec.yaml", yamlSpec)
	eps, err = loadSpec(yamlPath)
	require.NoError(t, err)
	require.Contains(t, eps, "getTeams")
	assert.Equal(t, "List teams", eps["getTeams"].Summary)
}

func TestLoadSpecErrors(t *testing.T) {
	_, err := loadSpec("does-not-exist.json")
	assert.Error(t, err)

	empty := writeTempSpec(t, "empty.json", `{"paths": {}}`)
	_, err = loadSpec(empty)
	assert.Error(t, err)
}
