// Package pipeline implements the extraction pipeline engine: it turns one
// input text into a batch of typed, embedded memories plus a deduplicated
// entity set, ready for a single storage write.
//
// A run always produces the raw memory. The mandatory entity-extraction step
// and every configured derivation step call independent, potentially flaky
// generation providers, so each one's failure is isolated: it is logged,
// reported, and skipped without erasing work the other steps produced. Only
// a raw-memory embedding failure aborts the run — a memory without a vector
// is unsearchable.
//
// Every vector in a run comes from one embedder, selected once at
// construction, so memory and entity vectors share a single similarity space.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mimi-ai/mimi/internal/config"
	"github.com/mimi-ai/mimi/internal/llm"
	"github.com/mimi-ai/mimi/pkg/types"
)

// extractionStepName is the report name of the mandatory extraction step.
const extractionStepName = "entity-extraction"

// Options tunes engine behavior. The zero value gets sensible defaults.
type Options struct {
	// Concurrency bounds how many generation steps run at once (default 4).
	Concurrency int

	// StepTimeout is the timeout applied around each external capability
	// call (default 90s). A timed-out call counts as that step's failure.
	StepTimeout time.Duration
}

// Engine orchestrates one pipeline run per Process call. It holds no mutable
// state across invocations, so concurrent Process calls are safe.
type Engine struct {
	embedder    llm.Provider
	extractor   llm.Provider
	steps       []stepRunner
	concurrency int
	stepTimeout time.Duration
}

// stepRunner pairs a configured step with its resolved provider.
type stepRunner struct {
	cfg      config.Step
	provider llm.Provider
}

// New creates a pipeline engine from the configured providers and derivation
// steps. The embedder is selected once here (a provider named "local" wins,
// otherwise the first embedding-capable provider in configuration order);
// the extraction generator prefers any provider other than the embedder's.
func New(providers []llm.Provider, steps []config.Step, opts Options) (*Engine, error) {
	embedder, err := llm.SelectEmbedder(providers)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	extractor, err := llm.SelectGenerator(providers, embedder.Name)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	runners := make([]stepRunner, 0, len(steps))
	for _, step := range steps {
		provider, ok := llm.FindProvider(providers, step.Provider)
		if !ok {
			return nil, fmt.Errorf("pipeline: step %q: unknown provider %q", step.Name, step.Provider)
		}
		if !provider.CanGenerate() {
			return nil, fmt.Errorf("pipeline: step %q: provider %q cannot generate text", step.Name, step.Provider)
		}
		runners = append(runners, stepRunner{cfg: step, provider: provider})
	}

	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.StepTimeout == 0 {
		opts.StepTimeout = 90 * time.Second
	}

	return &Engine{
		embedder:    embedder,
		extractor:   extractor,
		steps:       runners,
		concurrency: opts.Concurrency,
		stepTimeout: opts.StepTimeout,
	}, nil
}

// Embedder returns the provider selected for every embedding in this
// deployment. The search engine must embed queries with the same provider
// or similarity against stored vectors is meaningless.
func (e *Engine) Embedder() llm.Provider {
	return e.embedder
}

// Process runs the full pipeline on one input: raw memory, mandatory entity
// extraction, then every configured derivation step. It returns the batch
// without persisting it; persistence is the storage gateway's job.
//
// The returned memory list is deterministic — raw first, then derivation
// steps in configuration order — even though the generation calls behind
// them run concurrently.
func (e *Engine) Process(ctx context.Context, input string, metadata map[string]string) (*Batch, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("pipeline: input is required")
	}

	// One timestamp for the whole run supports transactional grouping.
	createdAt := time.Now().UTC()

	raw := types.Memory{
		ID:        NewMemoryID(),
		Content:   input,
		Kind:      types.KindRaw,
		CreatedAt: createdAt,
		Metadata:  cloneMetadata(metadata),
	}

	// The raw memory's embedding is the one mandatory external call: if it
	// fails the whole run fails, since an unembedded memory would violate
	// the shared-dimension invariant.
	vector, err := e.embed(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("pipeline: embed raw memory: %w", err)
	}
	raw.Vector = vector

	// Extraction and derivation steps all read only the original input, so
	// they fan out concurrently, bounded to respect provider rate limits.
	type extractionResult struct {
		entities []types.Entity
		err      error
	}

	var (
		wg         sync.WaitGroup
		sem        = make(chan struct{}, e.concurrency)
		extraction extractionResult
		stepMems   = make([]*types.Memory, len(e.steps))
		stepErrs   = make([]error, len(e.steps))
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		sem <- struct{}{}
		defer func() { <-sem }()
		extraction.entities, extraction.err = e.extractEntities(ctx, input, createdAt)
	}()

	for i := range e.steps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			stepMems[i], stepErrs[i] = e.runStep(ctx, e.steps[i], input, createdAt, metadata)
		}(i)
	}

	wg.Wait()

	batch := &Batch{
		Report: Report{
			EntityExtraction: StepOutcome{Name: extractionStepName, Err: extraction.err},
			Steps:            make([]StepOutcome, len(e.steps)),
		},
	}

	// Extraction failure is non-fatal: the raw memory still lands, with an
	// empty entity list.
	if extraction.err != nil {
		log.Printf("pipeline: entity extraction failed: %v", extraction.err)
	}
	batch.Entities = extraction.entities
	for _, entity := range batch.Entities {
		raw.EntityIDs = append(raw.EntityIDs, entity.ID)
	}

	batch.Memories = append(batch.Memories, raw)
	for i := range e.steps {
		batch.Report.Steps[i] = StepOutcome{Name: e.steps[i].cfg.Name, Err: stepErrs[i]}
		if stepErrs[i] != nil {
			log.Printf("pipeline: step %q failed: %v", e.steps[i].cfg.Name, stepErrs[i])
			continue
		}
		batch.Memories = append(batch.Memories, *stepMems[i])
	}

	return batch, nil
}

// extractEntities runs the mandatory extraction step: generate, parse,
// resolve within-batch identity, then embed each resolved entity with the
// shared embedder. A mid-batch embedding failure keeps the entities already
// embedded and reports the error; entities without vectors are never returned.
func (e *Engine) extractEntities(ctx context.Context, input string, createdAt time.Time) ([]types.Entity, error) {
	response, err := e.generate(ctx, e.extractor, llm.EntityExtractionPrompt(input))
	if err != nil {
		return nil, err
	}

	candidates, err := llm.ParseEntityResponse(response)
	if err != nil {
		return nil, fmt.Errorf("parse entity response: %w", err)
	}

	resolver := newEntityResolver(createdAt)
	for _, cand := range candidates {
		resolver.resolve(cand)
	}

	// Embed after resolution so merged descriptions are final before their
	// canonical text is embedded.
	entities := resolver.resolved()
	for i := range entities {
		vector, err := e.embed(ctx, entities[i].CanonicalText())
		if err != nil {
			return entities[:i], fmt.Errorf("embed entity %q: %w", entities[i].Name, err)
		}
		entities[i].Vector = vector
	}

	return entities, nil
}

// runStep executes one configured derivation step. Generation and embedding
// are sequential within the step: the embedding input is the generated text.
func (e *Engine) runStep(ctx context.Context, runner stepRunner, input string, createdAt time.Time, metadata map[string]string) (*types.Memory, error) {
	content, err := e.generate(ctx, runner.provider, llm.StepPrompt(runner.cfg.Prompt, input))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("step produced empty output")
	}

	meta := cloneMetadata(metadata)
	if meta == nil {
		meta = make(map[string]string, 1)
	}
	meta[types.MetaSourceStep] = runner.cfg.Name

	memory := types.Memory{
		ID:        NewMemoryID(),
		Content:   content,
		Kind:      types.KindForStep(runner.cfg.Name),
		CreatedAt: createdAt,
		Metadata:  meta,
	}

	vector, err := e.embed(ctx, content)
	if err != nil {
		return nil, err
	}
	memory.Vector = vector

	return &memory, nil
}

// generate calls a provider's text generator under the per-step timeout.
func (e *Engine) generate(ctx context.Context, provider llm.Provider, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()
	return provider.Generator.Complete(ctx, prompt)
}

// embed calls the shared embedder under the per-step timeout.
func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()
	return e.embedder.Embedder.Embed(ctx, text)
}

// cloneMetadata copies caller-supplied metadata so a run never aliases or
// mutates the caller's map. Nil stays nil.
func cloneMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	clone := make(map[string]string, len(metadata))
	for k, v := range metadata {
		clone[k] = v
	}
	return clone
}
