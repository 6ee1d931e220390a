package prompt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrTemplateNotFound is returned when a template name is unknown to both
// the prompt directory and the built-in defaults.
var ErrTemplateNotFound = errors.New("prompt template not found")

// Vars carries the values substituted into a template. Zero-value fields
// render as empty strings.
type Vars struct {
	Context             string
	Question            string
	ChatHistory         string
	LanguageInstruction string
}

// Template is a validated prompt template exposing only the recognized
// placeholder set.
type Template struct {
	Name string
	text string
}

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

var recognizedPlaceholders = map[string]bool{
	"context":              true,
	"question":             true,
	"chat_history":         true,
	"language_instruction": true,
}

// Format substitutes the recognized placeholders. Placeholders absent from
// the template are simply not used; no error either way.
func (t *Template) Format(v Vars) string {
	r := strings.NewReplacer(
		"{context}", v.Context,
		"{question}", v.Question,
		"{chat_history}", v.ChatHistory,
		"{language_instruction}", v.LanguageInstruction,
	)
	return r.Replace(t.text)
}

// Registry loads templates from a directory, validating placeholders at load
// time, and falls back to built-in defaults for missing or invalid files.
type Registry struct {
	dir       string
	templates map[string]*Template
}

// NewRegistry reads every known template name from dir. A missing file or a
// file with unrecognized placeholders is replaced by the built-in default
// with a warning; load never fails on bad template files.
func NewRegistry(dir string) *Registry {
	reg := &Registry{dir: dir, templates: make(map[string]*Template, len(builtinTemplates))}
	for name, fallback := range builtinTemplates {
		text, err := readTemplateFile(filepath.Join(dir, name))
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Err(err).Str("template", name).Msg("Falling back to built-in prompt template")
			}
			text = fallback
		}
		reg.templates[name] = &Template{Name: name, text: text}
	}
	return reg
}

// Get returns the template for name. Unknown names resolve to the default
// general-context template so a caller always gets a usable template.
func (r *Registry) Get(name string) *Template {
	if t, ok := r.templates[name]; ok {
		return t
	}
	log.Warn().Str("template", name).Msg("Unknown prompt template, using default")
	return r.templates[TemplateGeneralContext]
}

// Lookup is like Get but reports unknown names instead of defaulting.
func (r *Registry) Lookup(name string) (*Template, error) {
	if t, ok := r.templates[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

func readTemplateFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(data)
	if err := validatePlaceholders(text); err != nil {
		return "", err
	}
	return text, nil
}

func validatePlaceholders(text string) error {
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if !recognizedPlaceholders[m[1]] {
			return fmt.Errorf("unrecognized placeholder {%s}", m[1])
		}
	}
	return nil
}

// Built-in defaults keep the system answering even with an empty prompt
// directory. French-leaning wording matches the indexed corpus.
var builtinTemplates = map[string]string{
	TemplateGeneralContext: `You are QueryBot, an AI assistant that helps users find information in their documents.
{language_instruction}

Context:
{context}

Conversation so far:
{chat_history}

Question:
{question}

Answer the question based on the context provided. If the answer cannot be found in the context, say so clearly.`,

	TemplateGeneral: `You are QueryBot, a helpful AI assistant.
{language_instruction}

Conversation so far:
{chat_history}

Question:
{question}

No relevant documents were found for this question. Answer from general knowledge, and say so if you are unsure.`,

	TemplateProductSheet: `You are QueryBot, answering from product data sheets (cameras, lenses, network equipment).
{language_instruction}

Context:
{context}

Question:
{question}

Answer with the exact specifications found in the context (model, resolution, protocols). Do not invent values.`,

	TemplateLogs: `You are QueryBot, analyzing system logs and alerts.
{language_instruction}

Context:
{context}

Question:
{question}

Answer using only the log entries in the context. Quote timestamps and levels exactly as they appear.`,

	TemplateTechnicalDoc: `You are QueryBot, guiding the user through an installation or configuration procedure.
{language_instruction}

Context:
{context}

Question:
{question}

Answer as an ordered list of steps taken from the context, in the order the document gives them.`,

	TemplateSupportTicket: `You are QueryBot, summarizing support tickets and customer incidents.
{language_instruction}

Context:
{context}

Question:
{question}

Answer with the ticket facts found in the context: who reported, what failed, current status.`,

	TemplateEmail: `You are QueryBot, answering questions about email correspondence.
{language_instruction}

Context:
{context}

Question:
{question}

Answer using the sender, recipient, subject and body found in the context.`,

	TemplateDetectionReport: `You are QueryBot, answering from AI event-detection reports (intrusions, motion, abandoned objects).
{language_instruction}

Context:
{context}

Question:
{question}

Answer with the events found in the context. When counting, count only events matching the question's date, site and type; give the number and list the matching events.`,
}
