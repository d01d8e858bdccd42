package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"erdgen/internal/attr"
	"erdgen/internal/symbols"
	"erdgen/util"
)

// Parser turns file content into a symbol tree. scanner.Scanner is one.
type Parser interface {
	Supports(file symbols.FileID) bool
	Parse(file symbols.FileID, content []byte) ([]symbols.Symbol, error)
}

type Options struct {
	// Workers bounds concurrent parses; <= 0 means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Report describes one Build.
type Report struct {
	Root     string        `json:"root"`
	Files    int           `json:"files"`
	Parsed   int           `json:"parsed"`
	Skipped  int           `json:"skipped"`
	Pruned   int           `json:"pruned"`
	Duration time.Duration `json:"duration"`
	Stats    Stats         `json:"stats"`
}

// Index builds the declaration table and resolves definitions from it.
type Index struct {
	store   *Store
	parser  Parser
	workers int
	logger  *slog.Logger
}

var _ symbols.DefinitionResolver = (*Index)(nil)

func New(store *Store, parser Parser, opts Options) *Index {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{store: store, parser: parser, workers: workers, logger: logger}
}

func (ix *Index) Store() *Store { return ix.store }

// Build walks root, parses every supported file whose modification time
// changed since the last build, and drops files that no longer exist.
func (ix *Index) Build(ctx context.Context, root string) (Report, error) {
	start := time.Now()
	report := Report{Root: root}

	files, err := Walk(ctx, root, ix.parser.Supports)
	if err != nil {
		return report, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	report.Files = len(files)

	known, err := ix.store.ModTimes(ctx)
	if err != nil {
		return report, err
	}

	var (
		mu      sync.Mutex
		records []FileRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for _, file := range files {
		info, err := os.Stat(string(file))
		if err != nil {
			ix.logger.Debug("file vanished during walk", slog.String("file", string(file)))
			continue
		}
		mod := info.ModTime().UnixNano()
		if prev, ok := known[file]; ok && prev == mod {
			report.Skipped++
			continue
		}

		g.Go(func() error {
			content, err := os.ReadFile(string(file))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			syms, err := ix.parser.Parse(file, content)
			if err != nil {
				// one unparseable file should not sink the index
				ix.logger.Warn("failed to parse file", slog.String("file", string(file)), slog.Any("error", err))
				return nil
			}
			rec := FileRecord{File: file, ModTime: mod, Declarations: declarations(file, syms, "")}
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	report.Parsed = len(records)

	if err := ix.store.Replace(ctx, records, time.Now().Unix()); err != nil {
		return report, fmt.Errorf("failed to store declarations: %w", err)
	}
	if report.Pruned, err = ix.store.Prune(ctx, files); err != nil {
		return report, err
	}
	if report.Stats, err = ix.store.Stats(ctx); err != nil {
		return report, err
	}
	report.Duration = time.Since(start)

	ix.logger.Info("index built",
		slog.String("root", root),
		slog.Int("files", report.Files),
		slog.Int("parsed", report.Parsed),
		slog.Int("skipped", report.Skipped),
		slog.Int("pruned", report.Pruned),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func declarations(file symbols.FileID, syms []symbols.Symbol, container string) []Declaration {
	var out []Declaration
	for _, s := range syms {
		out = append(out, Declaration{
			ID:        util.NodeID(string(file), s.Kind.String(), s.Name, s.Range.Start.Line),
			Name:      s.Name,
			Kind:      s.Kind,
			File:      file,
			Container: container,
			Range:     s.Range,
		})
		out = append(out, declarations(file, s.Children, s.Name)...)
	}
	return out
}

// ResolveDefinition reads the constant path under pos and looks up its
// last segment. Container declarations win over members of the same name.
func (ix *Index) ResolveDefinition(ctx context.Context, file symbols.FileID, pos symbols.Position) ([]symbols.Location, error) {
	content, err := os.ReadFile(string(file))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	text := string(content)
	ident := identifierAt(text, symbols.OffsetAt(text, pos))
	if ident == "" {
		return nil, nil
	}

	decls, err := ix.store.Named(ctx, attr.LastSegment(ident))
	if err != nil {
		return nil, err
	}

	var containers, others []symbols.Location
	for _, d := range decls {
		if d.Kind.IsContainer() {
			containers = append(containers, d.Location())
		} else {
			others = append(others, d.Location())
		}
	}
	if len(containers) > 0 {
		return containers, nil
	}
	return others, nil
}

// identifierAt expands offset to the surrounding run of identifier and
// "::" characters, trimming stray colons.
func identifierAt(text string, offset int) string {
	if offset < 0 || offset > len(text) {
		return ""
	}
	start, end := offset, offset
	for start > 0 && isIdentByte(text[start-1]) {
		start--
	}
	for end < len(text) && isIdentByte(text[end]) {
		end++
	}
	return strings.Trim(text[start:end], ":")
}

func isIdentByte(b byte) bool {
	return b == '_' || b == ':' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
