package intent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	return NewDetector(t.TempDir(), "english", zerolog.Nop())
}

func TestDetectGreetingAndHelp(t *testing.T) {
	d := newTestDetector(t)

	dets := d.Detect("hello, can you help me?")
	require.NotEmpty(t, dets)

	byIntent := make(map[string]float64, len(dets))
	for _, det := range dets {
		byIntent[det.Intent] = det.Confidence
	}

	assert.GreaterOrEqual(t, byIntent["greeting"], 0.3)
	helpOrQuestion := byIntent["help_request"]
	if byIntent["question"] > helpOrQuestion {
		helpOrQuestion = byIntent["question"]
	}
	assert.GreaterOrEqual(t, helpOrQuestion, 0.3)

	// The strongest detection clears the medium cutoff.
	assert.GreaterOrEqual(t, dets[0].Confidence, 0.5)
}

func TestDetectRankedDescending(t *testing.T) {
	d := newTestDetector(t)
	dets := d.Detect("what is this error? it doesn't work and I'm frustrated")
	require.True(t, len(dets) >= 2)
	for i := 1; i < len(dets); i++ {
		assert.LessOrEqual(t, dets[i].Confidence, dets[i-1].Confidence)
	}
}

func TestDetectNoMatch(t *testing.T) {
	d := newTestDetector(t)
	assert.Empty(t, d.Detect("qwzzk lmnop"))
}

func TestDetectSpanishGreeting(t *testing.T) {
	d := newTestDetector(t)
	dets := d.Detect("hola, buenas")
	require.NotEmpty(t, dets)
	assert.Equal(t, "greeting", dets[0].Intent)
}

func TestConfidenceBounds(t *testing.T) {
	d := newTestDetector(t)
	for _, det := range d.Detect("error bug issue problem crash failed not working doesn't work stopped working no funciona") {
		assert.GreaterOrEqual(t, det.Confidence, 0.0)
		assert.LessOrEqual(t, det.Confidence, 1.0)
	}
}

func TestShouldRespondUsesPriorityCutoffs(t *testing.T) {
	d := newTestDetector(t)

	// help_request carries high priority (cutoff 0.8) in the default set.
	assert.False(t, d.ShouldRespond("help_request", "", 0.6))
	assert.True(t, d.ShouldRespond("help_request", "", 0.9))

	// greeting carries medium priority (cutoff 0.5).
	assert.False(t, d.ShouldRespond("greeting", "", 0.3))
	assert.True(t, d.ShouldRespond("greeting", "", 0.6))

	// No guideline means no template response regardless of confidence.
	assert.False(t, d.ShouldRespond("farewell", "", 0.99))
}

func TestChannelOverrideBeatsDefault(t *testing.T) {
	d := newTestDetector(t)

	msg, ok := d.ResponseFor("error_report", "support")
	require.True(t, ok)
	assert.Contains(t, msg, "repro")

	_, ok = d.ResponseFor("introduction", "welcome")
	assert.True(t, ok)

	// introduction has no default guideline, only the welcome channel one.
	_, ok = d.ResponseFor("introduction", "random")
	assert.False(t, ok)
}

func TestDefaultGuidelinesFileCreated(t *testing.T) {
	dir := t.TempDir()
	NewDetector(dir, "english", zerolog.Nop())

	data, err := os.ReadFile(filepath.Join(dir, "guidelines.json"))
	require.NoError(t, err)

	var g Guidelines
	require.NoError(t, json.Unmarshal(data, &g))
	assert.Contains(t, g.Default, "greeting")
	assert.Contains(t, g.Channels, "support")
}

func TestLanguageSwitchReloadsGuidelines(t *testing.T) {
	dir := t.TempDir()
	d := NewDetector(dir, "english", zerolog.Nop())
	require.NoError(t, d.LoadGuidelines("spanish"))
	assert.Equal(t, "spanish", d.Language())

	msg, ok := d.ResponseFor("greeting", "")
	require.True(t, ok)
	assert.Contains(t, defaultGuidelines("spanish").Default["greeting"].ResponseTemplates, msg)

	if _, err := os.Stat(filepath.Join(dir, "guidelines_spanish.json")); err != nil {
		t.Errorf("expected spanish guidelines file: %v", err)
	}
}

func TestUnknownLanguageFallsBackToEnglish(t *testing.T) {
	d := NewDetector(t.TempDir(), "klingon", zerolog.Nop())
	assert.Equal(t, "english", d.Language())
}
