package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mimi-ai/mimi/internal/config"
	"github.com/mimi-ai/mimi/internal/importer"
	"github.com/mimi-ai/mimi/pkg/types"
)

// runImport bulk-imports a folder of Markdown notes. Every note runs through
// the full extraction pipeline individually, tagged with its relative path in
// sourceFile metadata, so a later recall can be traced back to the file it
// came from. One failing note is reported and skipped; the import continues.
func runImport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	meta := make(metaFlags)
	project := fs.String("project", "", "project tag stored in metadata")
	dryRun := fs.Bool("dry-run", false, "parse and list notes without storing anything")
	fs.Var(meta, "meta", "extra metadata as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("import: exactly one directory is required")
	}

	notes, err := importer.ScanDir(fs.Arg(0))
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		fmt.Println("no Markdown notes found")
		return nil
	}

	if *dryRun {
		for _, note := range notes {
			fmt.Printf("%s  (%s)\n", note.Path, note.Title)
		}
		fmt.Printf("%d notes would be imported\n", len(notes))
		return nil
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

	imported, failed := 0, 0
	for _, note := range notes {
		noteMeta := make(map[string]string, len(meta)+3)
		for k, v := range meta {
			noteMeta[k] = v
		}
		noteMeta[types.MetaSourceFile] = note.Path
		if *project != "" {
			noteMeta[types.MetaProject] = *project
		}
		if len(note.Tags) > 0 {
			noteMeta["tags"] = strings.Join(note.Tags, ",")
		}

		batch, err := engine.Process(ctx, note.Content, noteMeta)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mimi: import %s: %v\n", note.Path, err)
			failed++
			continue
		}
		if err := gateway.UpsertBatch(ctx, batch.Memories, batch.Entities); err != nil {
			fmt.Fprintf(os.Stderr, "mimi: store %s: %v\n", note.Path, err)
			failed++
			continue
		}
		imported++
		fmt.Printf("imported %s (%d memories, %d entities)\n", note.Path, len(batch.Memories), len(batch.Entities))
	}

	fmt.Printf("done: %d imported, %d failed\n", imported, failed)
	if failed > 0 && imported == 0 {
		return fmt.Errorf("import: all %d notes failed", failed)
	}
	return nil
}
