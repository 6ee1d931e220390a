// Package language provides best-effort query language identification and
// the localized canned replies used for conversational intents.
package language

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Fallback is used whenever detection fails or is unreliable.
const Fallback = "en"

// Detect returns the ISO 639-1 code of the query language, falling back to
// English. Detection on short queries is inherently noisy; callers treat the
// result as a hint, not a fact.
func Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return Fallback
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return Fallback
	}
	return code
}

// Instruction returns the language directive injected into prompts so the
// model answers in the user's language.
func Instruction(lang string) string {
	switch lang {
	case "fr":
		return "Réponds en français."
	case "en":
		return "Answer in English."
	default:
		return "Answer in the language of the question."
	}
}

type act int

const (
	actGreeting act = iota
	actThanks
	actFarewell
)

var replies = map[string]map[act]string{
	"fr": {
		actGreeting: "Bonjour ! Comment puis-je vous aider avec vos documents ?",
		actThanks:   "Avec plaisir ! N'hésitez pas si vous avez d'autres questions.",
		actFarewell: "Au revoir ! À bientôt.",
	},
	"en": {
		actGreeting: "Hello! How can I help you with your documents?",
		actThanks:   "You're welcome! Let me know if you have more questions.",
		actFarewell: "Goodbye! See you soon.",
	},
}

var (
	thanksKeywords   = []string{"merci", "thank"}
	farewellKeywords = []string{"au revoir", "bye", "goodbye", "bonne journée", "bonne soirée"}
	frenchGreetings  = []string{"bonjour", "salut", "au revoir", "merci", "bonne "}
)

// IntentReply returns the canned reply for a conversational query, keyed by
// detected language with an English fallback. Detection on one-word
// greetings is unreliable, so a French keyword in the query overrides it.
func IntentReply(query, lang string) string {
	lower := strings.ToLower(query)
	for _, kw := range frenchGreetings {
		if strings.Contains(lower, kw) {
			lang = "fr"
			break
		}
	}

	table, ok := replies[lang]
	if !ok {
		table = replies[Fallback]
	}

	switch {
	case containsAny(lower, farewellKeywords):
		return table[actFarewell]
	case containsAny(lower, thanksKeywords):
		return table[actThanks]
	default:
		return table[actGreeting]
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
