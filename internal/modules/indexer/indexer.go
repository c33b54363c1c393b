// Package indexer provides ArticleIndexer, which builds a term hit list
// for every Article and links it back to the article.
package indexer

import (
	"context"
	"errors"
	"iter"

	"github.com/roach88/petal/internal/ir"
	"github.com/roach88/petal/internal/module"
)

// Module identity.
const (
	Name     = "ArticleIndexer"
	InLabel  = "Article"
	OutLabel = "HitList"
)

// Sections are the article fields that get indexed.
var Sections = []string{"summary", "title"}

const idNamespace = "petal/hitlist"

// ArticleIndexer consumes Article entities in pages and produces one
// HitList per article, connected in both directions by "hitlist".
type ArticleIndexer struct {
	module.Base
	cleaner *Cleaner
}

// New returns an ArticleIndexer.
func New() *ArticleIndexer {
	return &ArticleIndexer{
		Base: module.NewBase(module.Spec{
			Name:          Name,
			InLabel:       InLabel,
			OutLabel:      OutLabel,
			ConnectLabels: ir.Connect("hitlist", "hitlist"),
			Paged:         true,
		}),
		cleaner: NewCleaner(),
	}
}

// HitListID returns the uuid of the hit list built for article.
func HitListID(article string) string {
	return ir.NameID(idNamespace, article)
}

// Process indexes one article. Missing or non-text sections are indexed
// as empty.
func (m *ArticleIndexer) Process(ctx context.Context, previous *ir.Record) iter.Seq2[ir.Transaction, error] {
	if previous == nil {
		return module.Fail(errors.New("article indexer needs an input article"))
	}

	hits := NewHitList()
	for _, section := range Sections {
		for i, term := range m.cleaner.Clean(previous.String(section)) {
			hits.Add(section, term, i)
		}
	}

	data := hits.Data()
	data["article"] = previous.UUID
	return module.Yield(m.DefaultTransaction(previous, HitListID(previous.UUID), data))
}
