package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querybot/internal/config"
	"querybot/internal/history"
	"querybot/internal/index"
	"querybot/internal/llm"
	"querybot/internal/models"
	"querybot/internal/prompt"
	"querybot/internal/retriever"
)

type fakeIndex struct {
	docs        []models.Document
	searchCalls int
}

func (f *fakeIndex) SimilaritySearch(_ context.Context, _ string, k int) ([]models.Document, error) {
	f.searchCalls++
	if len(f.docs) == 0 {
		return nil, index.ErrEmptyIndex
	}
	if k > len(f.docs) {
		k = len(f.docs)
	}
	return append([]models.Document(nil), f.docs[:k]...), nil
}

func (f *fakeIndex) AddDocuments(_ context.Context, docs []models.Document) error {
	f.docs = append(f.docs, docs...)
	return nil
}

func (f *fakeIndex) AllDocuments(context.Context) ([]models.Document, error) {
	return append([]models.Document(nil), f.docs...), nil
}

func (f *fakeIndex) Count(context.Context) (int, error) { return len(f.docs), nil }

func (f *fakeIndex) Persist(context.Context) error { return nil }

type fakeGenerator struct {
	response   string
	err        error
	lastPrompt string
	calls      int
}

func (g *fakeGenerator) Generate(_ context.Context, promptText string, _ llm.TokenFunc) (string, error) {
	g.calls++
	g.lastPrompt = promptText
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func newTestRouter(t *testing.T, idx *fakeIndex, gen *fakeGenerator) *Router {
	t.Helper()
	store, err := history.NewStore(t.TempDir())
	require.NoError(t, err)
	r := New(config.Default(), retriever.New(idx), gen, prompt.NewRegistry(t.TempDir()), store, history.NewMemory(20))
	r.detect = func(string) string { return "fr" }
	return r
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestGreetingBypassesRetrieval(t *testing.T) {
	idx := &fakeIndex{}
	gen := &fakeGenerator{}
	r := newTestRouter(t, idx, gen)

	events := collect(t, r.Stream(context.Background(), "s1", "Bonjour"))

	complete := eventsOfType(events, EventComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, models.StrategyIntent, complete[0].Strategy)
	assert.Contains(t, complete[0].Content, "Bonjour")
	assert.Zero(t, idx.searchCalls, "conversational queries must not hit the index")
	assert.Zero(t, gen.calls, "conversational queries must not hit the model")
}

func TestRelevantDocumentsRouteToRAG(t *testing.T) {
	idx := &fakeIndex{docs: []models.Document{{
		ID:      "d1",
		Content: "Rapport de détection: 12 événements d'intrusion le 2024-05-01 sur le site nord.",
		Metadata: map[string]string{
			"source": "rapport.pdf", "section": "page 1",
		},
	}}}
	gen := &fakeGenerator{response: "12 événements d'intrusion ont été enregistrés le 2024-05-01."}
	r := newTestRouter(t, idx, gen)

	events := collect(t, r.Stream(context.Background(), "s1", "combien d'événements le 2024-05-01 ?"))

	complete := eventsOfType(events, EventComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, models.StrategyRAGPrefix+"prompt_rapport_detection", complete[0].Strategy)
	assert.Equal(t, gen.response, complete[0].Content)
	assert.Equal(t, []string{"rapport.pdf"}, complete[0].Sources)

	assert.Contains(t, gen.lastPrompt, "Rapport de détection", "retrieved context must reach the prompt")
	assert.Contains(t, gen.lastPrompt, "combien d'événements le 2024-05-01 ?")
	assert.Contains(t, gen.lastPrompt, "Réponds en français.")
}

func TestIrrelevantDocumentsFallBackToGeneral(t *testing.T) {
	idx := &fakeIndex{docs: []models.Document{{
		ID:       "d1",
		Content:  "2024-03-12 INFO vidange compresseur effectuée site sud, pression nominale stable.",
		Metadata: map[string]string{"source": "maintenance.log"},
	}}}
	gen := &fakeGenerator{response: "The capital of France is Paris."}
	r := newTestRouter(t, idx, gen)
	r.detect = func(string) string { return "en" }

	events := collect(t, r.Stream(context.Background(), "s1", "What is the capital of France?"))

	complete := eventsOfType(events, EventComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, models.StrategyGeneralFallback, complete[0].Strategy)
	assert.Empty(t, complete[0].Sources)
	assert.NotContains(t, gen.lastPrompt, "vidange", "off-topic documents must not leak into the prompt")
}

func TestEmptyIndexUsesGeneralStrategy(t *testing.T) {
	gen := &fakeGenerator{response: "Je peux répondre sans documents."}
	r := newTestRouter(t, &fakeIndex{}, gen)

	events := collect(t, r.Stream(context.Background(), "s1", "Explique le protocole RTSP"))

	complete := eventsOfType(events, EventComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, models.StrategyGeneral, complete[0].Strategy)
}

func TestStreamChunksReassembleResponse(t *testing.T) {
	gen := &fakeGenerator{response: "un deux trois quatre cinq six sept"}
	r := newTestRouter(t, &fakeIndex{}, gen)

	events := collect(t, r.Stream(context.Background(), "s1", "Explique le protocole RTSP"))

	chunks := eventsOfType(events, EventStream)
	require.NotEmpty(t, chunks)
	var parts []string
	for _, ev := range chunks {
		parts = append(parts, ev.Content)
	}
	assert.Equal(t, gen.response, strings.Join(parts, " "))

	require.Equal(t, EventStatus, events[0].Type)
	assert.Equal(t, EventComplete, events[len(events)-1].Type)
}

func TestGenerationFailureEmitsErrorEvent(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	r := newTestRouter(t, &fakeIndex{}, gen)

	events := collect(t, r.Stream(context.Background(), "s1", "Explique le protocole RTSP"))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Content, "model unavailable")
	assert.Empty(t, eventsOfType(events, EventComplete))

	entries, err := r.store.Interactions()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StrategyError, entries[0].Strategy)
}

func TestCancellationStopsChunkEmission(t *testing.T) {
	gen := &fakeGenerator{response: strings.Repeat("mot ", 200)}
	r := newTestRouter(t, &fakeIndex{}, gen)

	ctx, cancel := context.WithCancel(context.Background())
	ch := r.Stream(ctx, "s1", "Explique le protocole RTSP")

	streamed := 0
	for ev := range ch {
		if ev.Type == EventStream {
			streamed++
			if streamed == 2 {
				cancel()
			}
		}
		assert.NotEqual(t, EventComplete, ev.Type, "no terminal event after cancellation")
	}
	assert.Less(t, streamed, 10, "emission must stop promptly after cancellation")
}

func TestRespondConsumesStream(t *testing.T) {
	gen := &fakeGenerator{response: "Réponse complète du modèle."}
	r := newTestRouter(t, &fakeIndex{}, gen)

	content, strategy, err := r.Respond(context.Background(), "s1", "Explique le protocole RTSP")
	require.NoError(t, err)
	assert.Equal(t, gen.response, content)
	assert.Equal(t, models.StrategyGeneral, strategy)

	_, _, err = r.Respond(context.Background(), "s1", "une autre question générale")
	require.NoError(t, err)
}

func TestConversationMemoryFlowsIntoPrompts(t *testing.T) {
	gen := &fakeGenerator{response: "Première réponse."}
	r := newTestRouter(t, &fakeIndex{}, gen)

	_, _, err := r.Respond(context.Background(), "s1", "première question sans documents")
	require.NoError(t, err)

	_, _, err = r.Respond(context.Background(), "s1", "et ensuite ?")
	require.NoError(t, err)
	assert.Contains(t, gen.lastPrompt, "user: première question sans documents")
	assert.Contains(t, gen.lastPrompt, "assistant: Première réponse.")

	assert.Empty(t, r.memory.History("s2"), "sessions must stay isolated")
}

func TestSessionsDoNotShareMemory(t *testing.T) {
	gen := &fakeGenerator{response: "ok"}
	r := newTestRouter(t, &fakeIndex{}, gen)

	_, _, err := r.Respond(context.Background(), "alice", "question d'alice sans documents")
	require.NoError(t, err)

	_, _, err = r.Respond(context.Background(), "bob", "question de bob sans documents")
	require.NoError(t, err)
	assert.NotContains(t, gen.lastPrompt, "alice", "another session's turns must not leak")
}

func TestInteractionLogRecordsStrategy(t *testing.T) {
	gen := &fakeGenerator{response: "ok"}
	r := newTestRouter(t, &fakeIndex{}, gen)

	_, _, err := r.Respond(context.Background(), "s1", "Bonjour")
	require.NoError(t, err)
	_, _, err = r.Respond(context.Background(), "s1", "Explique le protocole RTSP")
	require.NoError(t, err)

	entries, err := r.store.Interactions()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.StrategyIntent, entries[0].Strategy)
	assert.Equal(t, models.StrategyGeneral, entries[1].Strategy)
	assert.WithinDuration(t, time.Now().UTC(), entries[1].Timestamp, time.Minute)
}
