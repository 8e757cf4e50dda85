package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rag_gateway/embedding"
)

const (
	DefaultChunkRunes = 2000
	indexConcurrency  = 4
	sourceField       = "filepath"
)

// DefaultExtensions are the file types IndexDir reads.
var DefaultExtensions = []string{".json", ".md", ".txt"}

type IndexerOptions struct {
	// ChunkRunes bounds the size of a text passage.
	ChunkRunes int
	Extensions []string
}

// Indexer embeds files and stores them as passages. Passage ids derive from
// the file path and chunk number, so indexing a directory again replaces
// its passages instead of duplicating them.
type Indexer struct {
	embedder   embedding.Service
	store      Store
	chunkRunes int
	extensions map[string]bool
	logger     *zap.Logger
}

func NewIndexer(embedder embedding.Service, store Store, opts IndexerOptions, logger *zap.Logger) *Indexer {
	if opts.ChunkRunes <= 0 {
		opts.ChunkRunes = DefaultChunkRunes
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Indexer{embedder: embedder, store: store, chunkRunes: opts.ChunkRunes, extensions: exts, logger: logger}
}

// IndexDir indexes every matching file under root and returns the number of
// passages stored. The first failure stops the run.
func (ix *Indexer) IndexDir(ctx context.Context, root string) (int, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && ix.extensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("fail to walk %s: %w", root, err)
	}

	var stored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexConcurrency)
	for _, path := range files {
		g.Go(func() error {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}
			passages, err := ix.passages(path, filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			for _, p := range passages {
				vec, err := ix.embedder.Get(gctx, p.Content)
				if err != nil {
					return fmt.Errorf("fail to embed %s: %w", p.Source, err)
				}
				if err := ix.store.Upsert(gctx, p, vec); err != nil {
					return fmt.Errorf("fail to store %s: %w", p.Source, err)
				}
				stored.Add(1)
			}
			ix.logger.Info("indexed file", zap.String("path", rel), zap.Int("passages", len(passages)))
			return nil
		})
	}
	err = g.Wait()
	return int(stored.Load()), err
}

// passages splits one file. A JSON file is a single passage whose source is
// its "filepath" field when present; text files are cut into chunks.
func (ix *Indexer) passages(path, rel string) ([]Passage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fail to read %s: %w", rel, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %w", rel, err)
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, data); err != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %w", rel, err)
		}
		source := rel
		if fp, ok := doc[sourceField].(string); ok && fp != "" {
			source = fp
		}
		return []Passage{{ID: passageID(rel, 0), Source: source, Content: compact.String()}}, nil
	}

	var out []Passage
	for i, chunk := range Chunk(string(data), ix.chunkRunes) {
		out = append(out, Passage{ID: passageID(rel, i), Source: rel, Content: chunk})
	}
	return out, nil
}

func passageID(rel string, chunk int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "%s#%d", rel, chunk)).String()
}

// Chunk splits text on blank lines into pieces of at most maxRunes runes.
// A single paragraph longer than maxRunes is cut hard.
func Chunk(text string, maxRunes int) []string {
	var chunks []string
	var cur []rune
	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			chunks = append(chunks, s)
		}
		cur = cur[:0]
	}
	for _, para := range strings.Split(text, "\n\n") {
		p := []rune(strings.TrimSpace(para))
		if len(p) == 0 {
			continue
		}
		if len(cur) > 0 && len(cur)+2+len(p) > maxRunes {
			flush()
		}
		for len(p) > maxRunes {
			if len(cur) > 0 {
				flush()
			}
			chunks = append(chunks, string(p[:maxRunes]))
			p = p[maxRunes:]
		}
		if len(cur) > 0 {
			cur = append(cur, '\n', '\n')
		}
		cur = append(cur, p...)
	}
	flush()
	return chunks
}
