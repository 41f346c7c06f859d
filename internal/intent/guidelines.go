package intent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Guideline describes how to answer one intent: canned templates plus the
// priority level that sets the confidence cutoff.
type Guideline struct {
	ResponseTemplates []string `json:"response_templates"`
	Priority          string   `json:"priority"`
}

// GuidelineSet maps intent name to its guideline.
type GuidelineSet map[string]Guideline

// Guidelines is the full per-language document: a default set plus
// channel-name overrides.
type Guidelines struct {
	Default  GuidelineSet            `json:"default"`
	Channels map[string]GuidelineSet `json:"channels"`
}

var guidelineFiles = map[string]string{
	"english": "guidelines.json",
	"spanish": "guidelines_spanish.json",
}

// LoadGuidelines loads the guidelines document for the language, creating a
// default template file first when none exists. Unknown languages fall back
// to english.
func (d *Detector) LoadGuidelines(language string) error {
	language = strings.ToLower(strings.TrimSpace(language))
	filename, ok := guidelineFiles[language]
	if !ok {
		d.log.Warn().Str("language", language).Msg("no guidelines for language, using english")
		language = "english"
		filename = guidelineFiles[language]
	}
	path := filepath.Join(d.dir, filename)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		g := defaultGuidelines(language)
		if err := saveGuidelines(path, g); err != nil {
			return fmt.Errorf("create default guidelines: %w", err)
		}
		d.mu.Lock()
		d.guidelines = g
		d.language = language
		d.mu.Unlock()
		d.log.Info().Str("path", path).Msg("created default guidelines template")
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read guidelines: %w", err)
	}
	var g Guidelines
	if err := json.Unmarshal(data, &g); err != nil {
		return fmt.Errorf("parse guidelines: %w", err)
	}

	d.mu.Lock()
	d.guidelines = g
	d.language = language
	d.mu.Unlock()
	d.log.Info().Str("language", language).Int("channels", len(g.Channels)).Msg("guidelines loaded")
	return nil
}

// SaveGuidelines writes the current in-memory guidelines back to the file
// for the active language.
func (d *Detector) SaveGuidelines() error {
	d.mu.RLock()
	language := d.language
	g := d.guidelines
	d.mu.RUnlock()

	filename, ok := guidelineFiles[language]
	if !ok {
		filename = guidelineFiles["english"]
	}
	return saveGuidelines(filepath.Join(d.dir, filename), g)
}

func saveGuidelines(path string, g Guidelines) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(g, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultGuidelines(language string) Guidelines {
	if language == "spanish" {
		return Guidelines{
			Default: GuidelineSet{
				"greeting": {
					ResponseTemplates: []string{
						"¡Hola! ¿En qué puedo ayudarte hoy?",
						"¡Hola! ¿Cómo puedo asistirte?",
						"¡Hey! Estoy aquí si necesitas ayuda.",
					},
					Priority: "medium",
				},
				"help_request": {
					ResponseTemplates: []string{
						"Estaré encantado de ayudar. ¿Con qué específicamente estás teniendo problemas?",
						"Definitivamente puedo ayudarte con eso. ¿Podrías proporcionar más detalles sobre lo que necesitas?",
					},
					Priority: "high",
				},
				"error_report": {
					ResponseTemplates: []string{
						"Lamento que estés experimentando problemas. Para ayudar a solucionar, ¿podrías proporcionar:\n- Pasos para reproducir el problema\n- Cualquier mensaje de error que estés viendo\n- Lo que esperabas que sucediera",
						"Vamos a averiguar qué está fallando. ¿Puedes compartir qué pasos llevaron a este error y qué mensajes de error recibiste?",
					},
					Priority: "high",
				},
			},
			Channels: map[string]GuidelineSet{
				"support": {
					"error_report": {
						ResponseTemplates: []string{
							"Gracias por reportar este problema. Para ayudar a nuestro equipo a investigar, por favor proporciona:\n- Pasos para reproducir\n- Comportamiento esperado\n- Comportamiento actual\n- Capturas de pantalla si es posible",
							"He tomado nota de tu reporte de error. ¿Podrías proporcionar más detalles incluyendo pasos exactos para reproducir y cualquier mensaje de error que veas?",
						},
						Priority: "high",
					},
					"feature_request": {
						ResponseTemplates: []string{
							"¡Gracias por tu sugerencia! Por favor describe:\n- El problema que esto resuelve\n- Cómo imaginas que funcionaría\n- Por qué sería valioso",
							"¡Apreciamos las ideas para nuevas funciones! ¿Podrías elaborar sobre el caso de uso y cómo esto mejoraría tu experiencia?",
						},
						Priority: "medium",
					},
				},
				"welcome": {
					"introduction": {
						ResponseTemplates: []string{
							"¡Bienvenido a nuestra comunidad! 👋 Siéntete libre de presentarte y echa un vistazo a nuestro canal de reglas.",
							"¡Genial tenerte con nosotros! Tómate un momento para leer nuestras pautas comunitarias y ponte cómodo.",
						},
						Priority: "high",
					},
				},
			},
		}
	}

	return Guidelines{
		Default: GuidelineSet{
			"greeting": {
				ResponseTemplates: []string{
					"Hello there! How can I help you today?",
					"Hi! What can I assist you with?",
					"Hey! I'm here if you need any help.",
				},
				Priority: "medium",
			},
			"help_request": {
				ResponseTemplates: []string{
					"I'd be happy to help. What specifically are you having trouble with?",
					"I can definitely assist with that. Could you provide more details about what you need help with?",
				},
				Priority: "high",
			},
			"error_report": {
				ResponseTemplates: []string{
					"I'm sorry to hear you're experiencing issues. To help troubleshoot, could you please provide:\n- Steps to reproduce the issue\n- Any error messages you're seeing\n- What you expected to happen",
					"Let's figure out what's going wrong. Can you share what steps led to this error and any error messages you received?",
				},
				Priority: "high",
			},
		},
		Channels: map[string]GuidelineSet{
			"support": {
				"error_report": {
					ResponseTemplates: []string{
						"Thank you for reporting this issue. To help our team investigate, please provide:\n- Steps to reproduce\n- Expected behavior\n- Actual behavior\n- Screenshots if possible",
						"I've noted your error report. Could you please provide more details including exact steps to reproduce and any error messages you see?",
					},
					Priority: "high",
				},
				"feature_request": {
					ResponseTemplates: []string{
						"Thanks for your suggestion! Please describe:\n- The problem this solves\n- How you envision it working\n- Why it would be valuable",
						"We appreciate feature ideas! Could you elaborate on the use case and how this would improve your experience?",
					},
					Priority: "medium",
				},
			},
			"welcome": {
				"introduction": {
					ResponseTemplates: []string{
						"Welcome to our community! 👋 Feel free to introduce yourself and check out our rules channel.",
						"Great to have you join us! Take a moment to read our community guidelines and make yourself at home.",
					},
					Priority: "high",
				},
			},
		},
	}
}
