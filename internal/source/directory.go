// Package source provides document sources backed by the local filesystem.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-processor/internal/extractor"
	"github.com/insightdelivered/statement-processor/internal/models"
	"github.com/insightdelivered/statement-processor/internal/parser"
)

var statementExts = map[string]bool{".pdf": true, ".txt": true}

// TextExtractor recovers page text from a statement file.
type TextExtractor interface {
	ExtractFile(path string) ([]string, error)
}

// Directory lists statement files under a path. Documents are numbered from
// 1 in lexical path order, so ids are stable across runs over the same tree.
type Directory struct {
	Root string
	// Bank, when set, is used as every document's correspondent instead of
	// detecting the institution from the text.
	Bank string

	text  TextExtractor
	log   zerolog.Logger
	paths map[int]string
}

// NewDirectory returns a Directory over root, which may also be a single file.
func NewDirectory(root, bank string, text TextExtractor, log zerolog.Logger) *Directory {
	return &Directory{
		Root:  root,
		Bank:  bank,
		text:  text,
		log:   log.With().Str("component", "source").Logger(),
		paths: make(map[int]string),
	}
}

// List extracts every statement file under Root. Files whose text cannot be
// extracted are still listed with nil pages so the run accounts for them.
func (d *Directory) List(ctx context.Context) ([]models.Document, error) {
	files, err := d.files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .pdf or .txt statements found in %s", d.Root)
	}

	docs := make([]models.Document, 0, len(files))
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := i + 1
		d.paths[id] = path
		doc := models.Document{ID: id, Path: path, Correspondent: d.Bank}

		pages, err := d.text.ExtractFile(path)
		if err != nil {
			d.log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("text extraction failed")
		} else {
			doc.Pages = pages
		}

		if doc.Correspondent == "" && doc.Pages != nil {
			inst, err := parser.AutoDetect(doc.Pages)
			if err != nil {
				d.log.Warn().Str("file", filepath.Base(path)).Msg("could not detect institution")
			} else {
				doc.Correspondent = string(inst)
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// FetchOriginal returns the raw bytes of a listed document.
func (d *Directory) FetchOriginal(ctx context.Context, id int) ([]byte, error) {
	path, ok := d.paths[id]
	if !ok {
		return nil, fmt.Errorf("document %d not listed", id)
	}
	return os.ReadFile(path)
}

func (d *Directory) files() ([]string, error) {
	info, err := os.Stat(d.Root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{d.Root}, nil
	}

	var files []string
	err = filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && statementExts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.Root, err)
	}
	sort.Strings(files)
	return files, nil
}

// NewFileExtractor is the TextExtractor used by the CLI.
func NewFileExtractor(log zerolog.Logger) TextExtractor {
	return extractor.New(log)
}
