// Package intent classifies chat messages into conversational intents using
// bilingual (English/Spanish) regex batteries, and decides whether a canned
// template response applies based on per-channel guidelines.
package intent

import (
	"math/rand"
	"regexp"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// intentPatterns holds the raw pattern batteries per intent. Each battery
// mixes English and Spanish forms; all are applied case-insensitively.
var intentPatterns = map[string][]string{
	"greeting": {
		`\b(hi|hello|hey|greetings|howdy|what's up|sup)\b`,
		`^(good\s+(morning|afternoon|evening|day))$`,
		`\b(hola|saludos|qué tal|qué hay|buenas)\b`,
		`^(buen(os|as)\s+(días|tardes|noches))$`,
	},
	"question": {
		`\?\s*$`,
		`\b(what|how|why|when|where|who|which|whose|whom|can|could|would|should|is|are|am|was|were)\b.+\?`,
		`\b(explain|tell me|share|describe)\b`,
		`\b(qué|cómo|por qué|cuándo|dónde|quién|cuál|cuáles|puedo|podría|debería|es|son|soy|fue|fueron)\b.+\?`,
		`\b(explica|dime|comparte|describe)\b`,
	},
	"help_request": {
		`\b(help|assist|support|guide|how\s+to|how\s+do\s+i)\b`,
		`\b(stuck|confused|lost|don't\s+understand|cant\s+figure\s+out|having\s+trouble)\b`,
		`\b(ayuda|asistencia|apoyo|guía|cómo\s+puedo|cómo\s+se\s+hace)\b`,
		`\b(atascado|confundido|perdido|no\s+entiendo|no\s+puedo\s+entender|tengo\s+problemas)\b`,
	},
	"gratitude": {
		`\b(thanks|thank\s+you|thx|appreciate|grateful)\b`,
		`\b(gracias|agradecido|agradezco|te\s+lo\s+agradezco)\b`,
	},
	"frustration": {
		`\b(annoyed|annoying|frustrated|frustrating|upset|angry|mad|irritated)\b`,
		`\b(doesn'?t\s+work|not\s+working|broken|useless|stupid|dumb)\b`,
		`(wtf|wth|bs|bullshit|fuck|damn|shit)`,
		`\b(molesto|frustrante|frustrado|enfadado|enojado|irritado)\b`,
		`\b(no\s+funciona|roto|inútil|estúpido|tonto)\b`,
		`(wtf|no\s+jodas|mierda|carajo|joder)`,
	},
	"feedback": {
		`\b(feedback|suggest|suggestion|improve|improvement|feature\s+request)\b`,
		`\b(retroalimentación|comentario|sugerencia|sugerir|mejorar|mejora|función\s+solicitada)\b`,
	},
	"error_report": {
		`\b(error|bug|issue|problem|crash|exception|failed|failing|fails)\b`,
		`\b(not\s+working|doesn'?t\s+work|stopped\s+working)\b`,
		`\b(error|fallo|problema|crashea|excepción|falló|fallando|falla)\b`,
		`\b(no\s+funciona|dejó\s+de\s+funcionar)\b`,
	},
	"feature_request": {
		`\b(feature\s+request|suggestion|would\s+be\s+nice|could\s+you\s+add|please\s+add|should\s+add)\b`,
		`\b(it\s+would\s+be\s+(great|nice|helpful|awesome)\s+if)\b`,
		`\b(solicitud\s+de\s+función|solicitud\s+de\s+característica|sugerencia|sería\s+bueno|podrías\s+añadir|por\s+favor\s+añade|deberías\s+añadir)\b`,
		`\b(sería\s+(genial|bueno|útil|increíble)\s+si)\b`,
	},
	"introduction": {
		`\b(new\s+here|first\s+time|just\s+joined|introduce\s+myself)\b`,
		`^(hi|hello|hey),?\s+i'?m\s+[a-z0-9_-]+`,
		`^(hi|hello|hey)\s+everyone`,
		`\b(nuevo\s+aquí|nuevo\s+por\s+aquí|primera\s+vez|recién\s+me\s+uní|me\s+presento)\b`,
		`^(hola|saludos),?\s+soy\s+[a-z0-9_-]+`,
		`^(hola|saludos)\s+a\s+todos`,
	},
	"farewell": {
		`\b(bye|goodbye|see\s+you|catch\s+you\s+later|talk\s+later|going\s+to\s+bed|heading\s+out)\b`,
		`\b(adiós|hasta\s+luego|nos\s+vemos|hablamos\s+luego|me\s+voy\s+a\s+dormir|me\s+tengo\s+que\s+ir)\b`,
	},
}

// Confidence scoring: each matching pattern within a battery contributes a
// fixed increment, capped below 1 so a regex hit never claims certainty.
const (
	matchWeight   = 0.3
	maxConfidence = 0.95
)

// Priority cutoffs used by ShouldRespond.
var priorityCutoffs = map[string]float64{
	"high":   0.8,
	"medium": 0.5,
	"low":    0.3,
}

// Detection is one ranked classification result.
type Detection struct {
	Intent     string
	Confidence float64
}

// Detector classifies messages and serves guideline-driven responses.
type Detector struct {
	mu         sync.RWMutex
	compiled   map[string][]*regexp.Regexp
	guidelines Guidelines
	language   string
	dir        string
	rng        *rand.Rand
	log        zerolog.Logger
}

// NewDetector compiles the pattern batteries and loads guidelines for the
// given language from dir (creating a default template file when missing).
func NewDetector(dir, language string, log zerolog.Logger) *Detector {
	compiled := make(map[string][]*regexp.Regexp, len(intentPatterns))
	for name, patterns := range intentPatterns {
		res := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			res = append(res, regexp.MustCompile(`(?i)`+p))
		}
		compiled[name] = res
	}

	d := &Detector{
		compiled: compiled,
		dir:      dir,
		rng:      rand.New(rand.NewSource(rand.Int63())),
		log:      log,
	}
	if err := d.LoadGuidelines(language); err != nil {
		log.Warn().Err(err).Str("language", language).Msg("guidelines unavailable")
	}
	return d
}

// Detect returns every intent the text matches, ranked by confidence
// descending. Confidence grows with the number of matching patterns and is
// always in [0,1].
func (d *Detector) Detect(text string) []Detection {
	var out []Detection
	for name, res := range d.compiled {
		matches := 0
		for _, re := range res {
			if re.MatchString(text) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		conf := matchWeight * float64(matches)
		if conf > maxConfidence {
			conf = maxConfidence
		}
		out = append(out, Detection{Intent: name, Confidence: conf})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Intent < out[j].Intent
	})
	return out
}

// ShouldRespond reports whether a template response is warranted for the
// intent in the given channel, comparing confidence against the guideline's
// priority cutoff. Intents with no guideline never trigger a template.
func (d *Detector) ShouldRespond(intent, channel string, confidence float64) bool {
	g, ok := d.guideline(intent, channel)
	if !ok {
		return false
	}
	cutoff, ok := priorityCutoffs[g.Priority]
	if !ok {
		cutoff = priorityCutoffs["medium"]
	}
	return confidence >= cutoff
}

// ResponseFor picks a response template for the intent, preferring a
// channel-specific guideline over the default set. The second return is
// false when no template exists.
func (d *Detector) ResponseFor(intent, channel string) (string, bool) {
	g, ok := d.guideline(intent, channel)
	if !ok || len(g.ResponseTemplates) == 0 {
		return "", false
	}
	d.mu.Lock()
	idx := d.rng.Intn(len(g.ResponseTemplates))
	d.mu.Unlock()
	return g.ResponseTemplates[idx], true
}

// Language returns the language the current guidelines were loaded for.
func (d *Detector) Language() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.language
}

func (d *Detector) guideline(intent, channel string) (Guideline, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if channel != "" {
		if set, ok := d.guidelines.Channels[channel]; ok {
			if g, ok := set[intent]; ok {
				return g, true
			}
		}
	}
	g, ok := d.guidelines.Default[intent]
	return g, ok
}
