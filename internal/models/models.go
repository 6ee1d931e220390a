package models

import "time"

// Document is one retrievable unit held by the vector index. Content is
// immutable once indexed; updates are modeled as new chunks, never edits.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Source returns the source identifier from metadata, or "" when unset.
func (d Document) Source() string {
	return d.Metadata["source"]
}

// Section returns the section identifier from metadata, or "" when unset.
func (d Document) Section() string {
	return d.Metadata["section"]
}

// Chunk is a parsed slice of a source file before embedding.
type Chunk struct {
	Content string
	Section string
	ChunkID int
}

// Message is one turn of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// InteractionLogEntry records one completed turn with the strategy that
// actually produced the response.
type InteractionLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Strategy  string    `json:"strategy"`
}

// Strategy tags recorded in the interaction log. Exactly one is attached to
// every emitted response.
const (
	StrategyIntent          = "intent"
	StrategyRAGPrefix       = "rag_"
	StrategyGeneral         = "llm_general"
	StrategyGeneralFallback = "llm_general_fallback"
	StrategyError           = "error"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
