// Package router orchestrates a query through classification, retrieval,
// the relevance gate, prompt selection and generation, and logs every
// completed turn. The streaming path is canonical; the full-text path
// consumes it to completion.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"querybot/internal/classifier"
	"querybot/internal/config"
	"querybot/internal/history"
	"querybot/internal/language"
	"querybot/internal/llm"
	"querybot/internal/models"
	"querybot/internal/prompt"
	"querybot/internal/relevance"
	"querybot/internal/retriever"
)

// EventType tags one streamed output event.
type EventType string

const (
	EventStatus   EventType = "status"
	EventStream   EventType = "stream"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one unit of streamed router output. The stream always ends with
// exactly one Complete or Error event before the channel closes, so callers
// can rely on a terminal signal.
type Event struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content"`
	Role      string    `json:"role,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
	Sources   []string  `json:"sources,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	// streamWordsPerChunk and streamDelay pace the emitted chunks. This is a
	// presentation split of the generated text, not token-level streaming
	// from the model, so first-token latency is not improved by it.
	streamWordsPerChunk = 3
	streamDelay         = 20 * time.Millisecond
)

// Router routes queries. Construct with New; the classify and detect hooks
// default to the real implementations and exist so tests can pin them.
type Router struct {
	cfg       *config.Config
	retriever *retriever.Retriever
	generator llm.Generator
	prompts   *prompt.Registry
	store     *history.Store
	memory    *history.Memory

	classify func(string) classifier.Label
	detect   func(string) string
}

func New(cfg *config.Config, ret *retriever.Retriever, gen llm.Generator, prompts *prompt.Registry, store *history.Store, memory *history.Memory) *Router {
	return &Router{
		cfg:       cfg,
		retriever: ret,
		generator: gen,
		prompts:   prompts,
		store:     store,
		memory:    memory,
		classify:  classifier.Classify,
		detect:    language.Detect,
	}
}

// Stream processes one query and emits events on the returned channel. The
// channel is closed after the terminal Complete or Error event. Closing ctx
// stops chunk emission promptly.
func (r *Router) Stream(ctx context.Context, session, query string) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		r.emit(ctx, ch, Event{Type: EventStatus, Content: "processing"})
		r.process(ctx, ch, session, query)
	}()
	return ch
}

// Respond consumes the stream to completion and returns the full response
// text with the strategy used.
func (r *Router) Respond(ctx context.Context, session, query string) (string, string, error) {
	var content, strategy string
	for ev := range r.Stream(ctx, session, query) {
		switch ev.Type {
		case EventComplete:
			content = ev.Content
			strategy = ev.Strategy
		case EventError:
			return "", "", errors.New(ev.Content)
		}
	}
	if content == "" && strategy == "" {
		return "", "", ctx.Err()
	}
	return content, strategy, nil
}

func (r *Router) process(ctx context.Context, ch chan<- Event, session, query string) {
	lang := r.detect(query)

	if r.classify(query) == classifier.Intent {
		reply := language.IntentReply(query, lang)
		r.finishTurn(ctx, ch, session, query, reply, models.StrategyIntent, nil)
		return
	}

	docs, err := r.retrieve(ctx, query)
	if err != nil {
		// Retrieval errors other than an empty index are recoverable: the
		// user still gets a general answer.
		log.Error().Err(err).Msg("Retrieval failed, answering without context")
		docs = nil
	}

	var (
		promptText string
		strategy   string
		sources    []string
	)
	switch {
	case len(docs) > 0 && relevance.IsRelevant(query, docs, relevance.DefaultThreshold):
		contextText := formatContext(docs)
		templateName := prompt.SelectFromContent(contextText)
		promptText = r.prompts.Get(templateName).Format(prompt.Vars{
			Context:             contextText,
			Question:            query,
			ChatHistory:         formatHistory(r.memory.History(session)),
			LanguageInstruction: language.Instruction(lang),
		})
		strategy = models.StrategyRAGPrefix + strings.TrimSuffix(templateName, ".txt")
		sources = uniqueSources(docs)
	case len(docs) > 0:
		// Candidates exist but failed the relevance gate.
		promptText = r.generalPrompt(session, query, lang)
		strategy = models.StrategyGeneralFallback
	default:
		// Nothing indexed or nothing retrieved.
		promptText = r.generalPrompt(session, query, lang)
		strategy = models.StrategyGeneral
	}

	response, err := r.generator.Generate(ctx, promptText, nil)
	if err != nil {
		r.fail(ctx, ch, query, err)
		return
	}
	r.finishTurn(ctx, ch, session, query, response, strategy, sources)
}

func (r *Router) retrieve(ctx context.Context, query string) ([]models.Document, error) {
	rc := r.cfg.Retrieval
	if rc.Mode == "dense" {
		return r.retriever.DenseSearch(ctx, query, rc.DenseOnlyK)
	}
	return r.retriever.HybridSearch(ctx, query, rc.K, rc.DenseK, rc.KeywordK)
}

func (r *Router) generalPrompt(session, query, lang string) string {
	return r.prompts.Get(prompt.TemplateGeneral).Format(prompt.Vars{
		Question:            query,
		ChatHistory:         formatHistory(r.memory.History(session)),
		LanguageInstruction: language.Instruction(lang),
	})
}

// finishTurn streams the response, records memory, history and the
// interaction log, and emits the terminal Complete event.
func (r *Router) finishTurn(ctx context.Context, ch chan<- Event, session, query, response, strategy string, sources []string) {
	if !r.streamChunks(ctx, ch, response) {
		// Cancelled mid-stream: no Complete event, but the turn is still
		// logged so the interaction log is never silently incomplete.
		r.recordTurn(session, query, response, strategy)
		return
	}
	r.recordTurn(session, query, response, strategy)
	r.emit(ctx, ch, Event{
		Type:     EventComplete,
		Content:  response,
		Role:     models.RoleAssistant,
		Strategy: strategy,
		Sources:  sources,
	})
}

func (r *Router) fail(ctx context.Context, ch chan<- Event, query string, err error) {
	log.Error().Err(err).Msg("Generation failed")
	r.store.Record(models.InteractionLogEntry{
		Timestamp: time.Now().UTC(),
		Query:     query,
		Response:  err.Error(),
		Strategy:  models.StrategyError,
	})
	r.emit(ctx, ch, Event{Type: EventError, Content: err.Error()})
}

func (r *Router) recordTurn(session, query, response, strategy string) {
	now := time.Now().UTC()
	userMsg := models.Message{Role: models.RoleUser, Content: query, Timestamp: now}
	botMsg := models.Message{Role: models.RoleAssistant, Content: response, Timestamp: now}

	r.memory.Append(session, userMsg)
	r.memory.Append(session, botMsg)
	if err := r.store.Append(userMsg); err != nil {
		log.Warn().Err(err).Msg("Dropping history write")
	}
	if err := r.store.Append(botMsg); err != nil {
		log.Warn().Err(err).Msg("Dropping history write")
	}
	r.store.Record(models.InteractionLogEntry{
		Timestamp: now,
		Query:     query,
		Response:  response,
		Strategy:  strategy,
	})
}

// streamChunks emits the response in fixed-size word groups with a pacing
// delay, yielding between chunks so one slow consumer cannot starve others.
// Returns false when cancelled; no chunk is emitted after cancellation.
func (r *Router) streamChunks(ctx context.Context, ch chan<- Event, text string) bool {
	words := strings.Fields(text)
	for i := 0; i < len(words); i += streamWordsPerChunk {
		end := i + streamWordsPerChunk
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if !r.emit(ctx, ch, Event{Type: EventStream, Content: chunk, Role: models.RoleAssistant}) {
			return false
		}
		select {
		case <-time.After(streamDelay):
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (r *Router) emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	ev.Timestamp = time.Now().UTC()
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func formatContext(docs []models.Document) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		source := doc.Source()
		if source == "" {
			source = "unknown"
		}
		parts = append(parts, fmt.Sprintf("Document: %s\nContent: %s", source, doc.Content))
	}
	return strings.Join(parts, "\n\n")
}

func formatHistory(msgs []models.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Role+": "+m.Content)
	}
	return strings.Join(parts, "\n")
}

func uniqueSources(docs []models.Document) []string {
	seen := make(map[string]bool, len(docs))
	var sources []string
	for _, doc := range docs {
		s := doc.Source()
		if s != "" && !seen[s] {
			seen[s] = true
			sources = append(sources, s)
		}
	}
	return sources
}
