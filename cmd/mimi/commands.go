package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mimi-ai/mimi/internal/config"
	"github.com/mimi-ai/mimi/internal/search"
	"github.com/mimi-ai/mimi/internal/storage"
	"github.com/mimi-ai/mimi/pkg/types"
)

// metaFlags collects repeated -meta key=value flags into a metadata map.
type metaFlags map[string]string

func (m metaFlags) String() string { return fmt.Sprintf("%v", map[string]string(m)) }

func (m metaFlags) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	m[key] = val
	return nil
}

// runRemember stores one new memory: it runs the full extraction pipeline on
// the input, then persists the whole batch in a single gateway write. Partial
// pipeline failure (a derivation step or entity extraction failing) is
// reported on stderr but still exits zero — the raw memory landed.
func runRemember(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("remember", flag.ExitOnError)
	meta := make(metaFlags)
	project := fs.String("project", "", "project tag stored in metadata")
	user := fs.String("user", "", "user tag stored in metadata")
	source := fs.String("source", "", "source file tag stored in metadata")
	fs.Var(meta, "meta", "extra metadata as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input, err := readInput(fs.Args())
	if err != nil {
		return err
	}

	if *project != "" {
		meta[types.MetaProject] = *project
	}
	if *user != "" {
		meta[types.MetaUserID] = *user
	}
	if *source != "" {
		meta[types.MetaSourceFile] = *source
	}

	engine, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	gateway, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer gateway.Close()

	batch, err := engine.Process(ctx, input, meta)
	if err != nil {
		return err
	}

	if err := gateway.UpsertBatch(ctx, batch.Memories, batch.Entities); err != nil {
		return fmt.Errorf("store batch: %w", err)
	}

	fmt.Printf("stored %d memories, %d entities\n", len(batch.Memories), len(batch.Entities))
	for _, m := range batch.Memories {
		fmt.Printf("  %s  %s\n", m.Kind, m.ID)
	}
	if failed := batch.Report.FailedSteps(); len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "mimi: %d step(s) failed: %s\n", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// recallResult is the JSON shape of one recall hit, exposing the score
// decomposition so callers can see how much the entity boost contributed.
type recallResult struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Content    string            `json:"content"`
	CreatedAt  time.Time         `json:"createdAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	EntityIDs  []string          `json:"entityIds,omitempty"`
	BaseScore  float64           `json:"baseScore"`
	Boost      float64           `json:"boost"`
	FinalScore float64           `json:"finalScore"`
}

// runRecall searches stored memories for a phrase, optionally boosting
// memories linked to a focus entity and filtering by metadata tags.
func runRecall(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("recall", flag.ExitOnError)
	focus := fs.String("focus", "", "entity name to boost")
	limit := fs.Int("limit", 10, "maximum number of results")
	project := fs.String("project", "", "restrict to this project tag")
	user := fs.String("user", "", "restrict to this user tag")
	asJSON := fs.Bool("json", false, "emit results as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("recall: a search phrase is required")
	}
	phrase := strings.Join(fs.Args(), " ")

	filters := make(map[string]string)
	if *project != "" {
		filters[types.MetaProject] = *project
	}
	if *user != "" {
		filters[types.MetaUserID] = *user
	}

	engine, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	gateway, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer gateway.Close()

	searcher, err := buildSearch(cfg, gateway, engine)
	if err != nil {
		return err
	}

	results, err := searcher.Search(ctx, search.Query{
		Phrase:      phrase,
		EntityFocus: *focus,
		Filters:     filters,
		Limit:       *limit,
	})
	if err != nil {
		return err
	}

	if *asJSON {
		out := make([]recallResult, 0, len(results))
		for _, r := range results {
			out = append(out, recallResult{
				ID:         r.Memory.ID,
				Kind:       string(r.Memory.Kind),
				Content:    r.Memory.Content,
				CreatedAt:  r.Memory.CreatedAt,
				Metadata:   r.Memory.Metadata,
				EntityIDs:  r.Memory.EntityIDs,
				BaseScore:  r.BaseScore,
				Boost:      r.Boost,
				FinalScore: r.FinalScore,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(results) == 0 {
		fmt.Println("no memories found")
		return nil
	}
	for _, r := range results {
		marker := " "
		if r.Boosted() {
			marker = "*"
		}
		fmt.Printf("%.3f%s [%s] %s\n    %s\n", r.FinalScore, marker, r.Memory.Kind, r.Memory.ID, oneLine(r.Memory.Content))
	}
	return nil
}

// runForget deletes a memory by ID.
func runForget(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("forget", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("forget: exactly one memory ID is required")
	}
	id := fs.Arg(0)

	gateway, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer gateway.Close()

	if err := gateway.DeleteMemory(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("forget: no memory with ID %q", id)
		}
		return err
	}
	fmt.Printf("forgot %s\n", id)
	return nil
}

// runShow prints one memory or entity. The ID prefix (mem: or ent:) selects
// which lookup to perform.
func runShow(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("show: exactly one ID is required")
	}
	id := fs.Arg(0)

	gateway, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer gateway.Close()

	switch {
	case strings.HasPrefix(id, "ent:"):
		entity, err := gateway.GetEntity(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("show: no entity with ID %q", id)
			}
			return err
		}
		fmt.Printf("entity  %s\nname    %s\ntype    %s\ncreated %s\n", entity.ID, entity.Name, entity.Type, entity.CreatedAt.Format(time.RFC3339))
		if entity.Description != "" {
			fmt.Printf("about   %s\n", entity.Description)
		}
		return nil

	default:
		memory, err := gateway.GetMemory(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("show: no memory with ID %q", id)
			}
			return err
		}
		fmt.Printf("memory  %s\nkind    %s\ncreated %s\n", memory.ID, memory.Kind, memory.CreatedAt.Format(time.RFC3339))
		for k, v := range memory.Metadata {
			fmt.Printf("meta    %s=%s\n", k, v)
		}
		for _, entityID := range memory.EntityIDs {
			fmt.Printf("entity  %s\n", entityID)
		}
		fmt.Printf("\n%s\n", memory.Content)
		return nil
	}
}

// runInstruction prints the instruction block an agent harness pastes into
// its system prompt so the model knows when to call mimi remember/recall.
func runInstruction(args []string) error {
	fs := flag.NewFlagSet("instruction", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Print(`You have access to a persistent memory system through the "mimi" command.

To store something worth remembering (user preferences, decisions, facts
about people or projects), run:

    mimi remember "the fact to remember"

To retrieve relevant memories before answering, run:

    mimi recall "what you are looking for"

Add -focus "name" to recall when a specific person, project, or tool is
central to the question; memories involving that entity rank higher.

Store memories proactively when the user shares durable information. Recall
before answering questions that may depend on past conversations.
`)
	return nil
}

// readInput returns the joined positional args, or stdin when none are given.
func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("no input: pass text as an argument or on stdin")
	}
	return string(data), nil
}

// oneLine collapses content to a single trimmed line for list output.
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	const max = 120
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}
