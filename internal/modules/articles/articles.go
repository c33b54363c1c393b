// Package articles provides the source module that seeds Article entities
// from a YAML file.
package articles

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/petal/internal/ir"
	"github.com/roach88/petal/internal/module"
)

// Label is the entity label this module produces.
const Label = "Article"

// Name is the registered module name.
const Name = "ArticleSource"

// idNamespace scopes article identifiers derived by ir.NameID.
const idNamespace = "petal/article"

// Article is one seed entry.
type Article struct {
	Title   string   `yaml:"title"`
	Summary string   `yaml:"summary"`
	URL     string   `yaml:"url"`
	Authors []string `yaml:"authors"`
}

// key is the natural key an article's uuid is derived from.
func (a Article) key() string {
	if a.URL != "" {
		return a.URL
	}
	return strings.ToLower(strings.TrimSpace(a.Title))
}

func (a Article) data() map[string]any {
	data := map[string]any{
		"title":   a.Title,
		"summary": a.Summary,
	}
	if a.URL != "" {
		data["url"] = a.URL
	}
	if len(a.Authors) > 0 {
		data["authors"] = a.Authors
	}
	return data
}

type seedFile struct {
	Articles []Article `yaml:"articles"`
}

// Source emits one Article per seed entry each time it is scheduled.
// Identifiers are derived from the entry's url (or title), so re-emitting
// a seed file never creates duplicates.
type Source struct {
	module.Base
	path string
}

// New returns a Source reading the seed file at path.
func New(path string) *Source {
	return &Source{
		Base: module.NewBase(module.Spec{Name: Name, OutLabel: Label}),
		path: path,
	}
}

// Process reads the seed file. A missing file yields nothing.
func (s *Source) Process(ctx context.Context, previous *ir.Record) iter.Seq2[ir.Transaction, error] {
	articles, err := Read(s.path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no article seed file", "module", Name, "file", s.path)
		return module.Yield()
	}
	if err != nil {
		return module.Fail(err)
	}

	return func(yield func(ir.Transaction, error) bool) {
		for i, a := range articles {
			if strings.TrimSpace(a.Title) == "" {
				if !yield(ir.Transaction{}, fmt.Errorf("seed %s: article %d has no title", s.path, i)) {
					return
				}
				continue
			}
			tx := s.DefaultTransaction(previous, a.ID(), a.data())
			if !yield(tx, nil) {
				return
			}
		}
	}
}

// Read parses a seed file.
func Read(path string) ([]Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return f.Articles, nil
}

// ID returns the uuid the article is persisted under.
func (a Article) ID() string {
	return ir.NameID(idNamespace, a.key())
}
