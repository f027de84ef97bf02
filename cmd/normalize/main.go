// Command normalize runs feed records from a local file through normalization,
// deduplication, and offset-only geometry enrichment, then prints the
// canonical events as JSON. It is meant for checking a new or changed feed
// without running the service.
//
// Usage:
//
//	go run ./cmd/normalize -in testdata/iowa.geojson -source iowa -state IA
//	go run ./cmd/normalize -in legacy.xml -format xml -records-path events.event
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/road-event-etl/internal/adapter/feeds"
	"github.com/couchcryptid/road-event-etl/internal/domain"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "normalize:", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "feed file to normalize (JSON, GeoJSON, or XML)")
	format := fs.String("format", "", "feed format: wzdx, json, or xml (default from file extension)")
	source := fs.String("source", "", "source name (default file name without extension)")
	state := fs.String("state", "", "contributing state key")
	recordsPath := fs.String("records-path", "", "dotted path to the record array")
	noDedupe := fs.Bool("no-dedupe", false, "skip merging duplicate events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		fs.Usage()
		return errors.New("-in is required")
	}

	meta := domain.SourceMeta{
		Name:   *source,
		State:  strings.ToUpper(*state),
		Format: *format,
	}
	base := filepath.Base(*in)
	ext := strings.ToLower(filepath.Ext(base))
	if meta.Name == "" {
		meta.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if meta.Format == "" {
		meta.Format = formatForExt(ext)
	}

	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := feeds.Decode(f, meta.Format, *recordsPath)
	if err != nil {
		return fmt.Errorf("decode %s: %w", *in, err)
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	notes := domain.NewFieldNotes()
	normalizer := domain.NewNormalizer(nil).WithNotes(notes)

	var (
		events   []domain.Event
		rejected = map[string]int{}
	)
	for _, rec := range records {
		ev, err := normalizer.Normalize(rec, meta)
		if err != nil {
			var rej *domain.RejectedError
			if errors.As(err, &rej) {
				rejected[rej.Reason.Error()]++
				continue
			}
			return err
		}
		events = append(events, ev)
	}
	normalized := len(events)
	if !*noDedupe {
		events = domain.Deduplicate(events)
	}
	events = domain.NewEnricher(nil, nil, nil, domain.DefaultEnricherConfig(), logger).
		EnrichBatch(context.Background(), events)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return err
	}

	fmt.Fprintf(stderr, "%s: %d records, %d events, %d merged\n",
		meta.Name, len(records), len(events), normalized-len(events))
	for reason, n := range rejected {
		fmt.Fprintf(stderr, "  rejected %-20s %d\n", reason, n)
	}
	for _, n := range notes.Legacy() {
		fmt.Fprintf(stderr, "  legacy   %-20s %s (%d)\n", n.Field, n.Name, n.Count)
	}
	for _, n := range notes.Unknown() {
		fmt.Fprintf(stderr, "  unknown  %s (%d)\n", n.Name, n.Count)
	}
	for _, c := range notes.Coverage() {
		fmt.Fprintf(stderr, "  coverage %.3f, missing %v\n", c.Coverage, c.Missing)
	}
	return nil
}

func formatForExt(ext string) string {
	switch ext {
	case ".xml":
		return feeds.FormatXML
	case ".geojson":
		return feeds.FormatWZDx
	}
	return feeds.FormatJSON
}
