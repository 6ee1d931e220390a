// Package prompt selects and formats the prompt templates used for
// generation. Selection is an ordered rule table over domain vocabulary;
// templates come from a directory-backed registry with built-in defaults.
package prompt

import (
	"regexp"
	"strings"
)

// Template names known to the selector. Each maps to a file in the prompt
// directory, with a built-in fallback when the file is absent.
const (
	TemplateProductSheet    = "prompt_fiche_produit.txt"
	TemplateLogs            = "prompt_logs.txt"
	TemplateTechnicalDoc    = "prompt_doc_technique.txt"
	TemplateSupportTicket   = "prompt_ticket_support.txt"
	TemplateEmail           = "prompt_email.txt"
	TemplateDetectionReport = "prompt_rapport_detection.txt"
	TemplateGeneralContext  = "prompt_general_context.txt"
	TemplateGeneral         = "prompt_general.txt"
)

type rule struct {
	pattern  *regexp.Regexp
	template string
}

// ruleTable routes on domain vocabulary. First match wins: priority is
// declaration order, not pattern specificity.
var ruleTable = []rule{
	{regexp.MustCompile(`(?i)\b(camera|ip|rtsp|objectif|r[ée]solution|zoom|d[ôo]me|ptz|fiche technique)\b`), TemplateProductSheet},
	{regexp.MustCompile(`(?i)\b(alert|log|erreur|anomalie|timestamp|niveau|event id)\b`), TemplateLogs},
	{regexp.MustCompile(`(?i)installation|[ée]tape d'installation|proc[ée]dure|branchez|configurez|guide technique`), TemplateTechnicalDoc},
	{regexp.MustCompile(`(?i)client|probl[èe]me|incident|ticket|support|demande|r[ée]clamation`), TemplateSupportTicket},
	{regexp.MustCompile(`(?im)^\s*de :|^\s*from:|@.*\..*|objet :|subject:`), TemplateEmail},
	{regexp.MustCompile(`(?i)\b([ée]v[ée]nement|d[ée]tection|intrusion|mouvement|objet abandonn[ée]|cam[ée]ra|camera|site|niveau de confiance|rapport|analyse|ia|intelligence artificielle)\b`), TemplateDetectionReport},
	{regexp.MustCompile(`(?i)\bcombien\b`), TemplateDetectionReport},
	{regexp.MustCompile(`(?i)\b(enregistr[ée]s?|enregistrees|date|quand|nombre|total)\b`), TemplateDetectionReport},
	{regexp.MustCompile(`(?i)\b(\d{4}-\d{2}-\d{2}|\d{1,2} [a-zéû]+ \d{4})\b`), TemplateDetectionReport},
}

// SelectFromContent picks a template from retrieved document content.
// Preferred over SelectFromQuery when content is available: the answer text,
// not the question phrasing, determines the structure the prompt needs.
func SelectFromContent(content string) string {
	return selectTemplate(content)
}

// SelectFromQuery picks a template from the raw user query, for branches
// where no document content is available yet.
func SelectFromQuery(query string) string {
	return selectTemplate(strings.ToLower(query))
}

func selectTemplate(text string) string {
	// Empty input always gets the default, bypassing the rule table, so an
	// accidental match in an empty or whitespace-only string is impossible.
	if strings.TrimSpace(text) == "" {
		return TemplateGeneralContext
	}
	for _, r := range ruleTable {
		if r.pattern.MatchString(text) {
			return r.template
		}
	}
	return TemplateGeneralContext
}
