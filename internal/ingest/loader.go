package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 16 << 20

// textExtensions are the file types read from a corpus directory.
var textExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// IsCorpusFile reports whether path is a document a directory load reads.
func IsCorpusFile(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}

// DocumentID derives a stable id from a document's source URL, or from its
// title when it has none.
func DocumentID(sourceURL, title string) string {
	name := strings.TrimSpace(sourceURL)
	if name == "" {
		name = strings.TrimSpace(title)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// record is one line of a JSONL corpus.
type record struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Synopsis  string    `json:"synopsis"`
	Content   string    `json:"content"`
	SourceURL string    `json:"source_url"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// Load reads documents from path: a directory of text files, a single text
// file or a JSONL file.
func Load(ctx context.Context, path string) ([]*store.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeFileNotFound, fmt.Sprintf("corpus not found: %s", path), err)
	}
	if info.IsDir() {
		return LoadDir(ctx, path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open corpus: %w", err)
		}
		defer f.Close()
		return LoadJSONL(ctx, f)
	default:
		doc, err := LoadFile(filepath.Dir(path), path)
		if err != nil {
			return nil, err
		}
		return []*store.Document{doc}, nil
	}
}

// LoadDir reads every text file under dir in path order. Dot entries and
// paths matched by the root's ignore files are skipped.
func LoadDir(ctx context.Context, dir string) ([]*store.Document, error) {
	ig, err := LoadIgnorer(dir)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "failed to read ignore file", err)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		if strings.HasPrefix(d.Name(), ".") || ig.Ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if IsCorpusFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk corpus directory: %w", err)
	}
	sort.Strings(paths)

	docs := make([]*store.Document, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := LoadFile(dir, p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadFile reads one text file. Its id is derived from the path relative
// to root, so it survives moving the corpus. The title is the first
// heading, or the file name without extension.
func LoadFile(root, path string) (*store.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	content := string(data)
	title := chunk.Title(content)
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	source := FileSource(root, path)

	return &store.Document{
		ID:        DocumentID(source, title),
		Title:     title,
		Content:   content,
		SourceURL: source,
		ScrapedAt: info.ModTime().UTC(),
	}, nil
}

// FileSource is the source URL recorded for a corpus file.
func FileSource(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return "file:" + filepath.ToSlash(rel)
}

// LoadJSONL reads one document per line. Blank lines are skipped. Records
// without an id get a derived one.
func LoadJSONL(ctx context.Context, r io.Reader) ([]*store.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var docs []*store.Document
	seen := make(map[string]int)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, amerrors.Newf(amerrors.ErrCodeInvalidInput, "line %d: invalid JSON: %v", line, err)
		}
		if rec.Title == "" && rec.SourceURL == "" && rec.ID == "" {
			return nil, amerrors.Newf(amerrors.ErrCodeInvalidInput, "line %d: record needs an id, title or source_url", line)
		}
		id := rec.ID
		if id == "" {
			id = DocumentID(rec.SourceURL, rec.Title)
		}
		if strings.Contains(id, "#") {
			return nil, amerrors.Newf(amerrors.ErrCodeInvalidInput, "line %d: document id %q must not contain '#'", line, id)
		}

		doc := &store.Document{
			ID:        id,
			Title:     rec.Title,
			Synopsis:  rec.Synopsis,
			Content:   rec.Content,
			SourceURL: rec.SourceURL,
			ScrapedAt: rec.ScrapedAt,
		}
		// A later record with the same id replaces the earlier one.
		if i, ok := seen[id]; ok {
			docs[i] = doc
			continue
		}
		seen[id] = len(docs)
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	return docs, nil
}
