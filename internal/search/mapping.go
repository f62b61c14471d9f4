package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

const docTypeBook = "book"

// buildIndexMapping describes book documents:
//
//	title        english analyzer, stored, term vectors for highlighting
//	author       simple analyzer (names are not stemmed), stored
//	description  english analyzer, not stored
//	isbn         keyword, digits only, stored
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName
	indexMapping.TypeField = "type"

	doc := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = en.AnalyzerName
	title.Store = true
	title.IncludeTermVectors = true
	doc.AddFieldMappingsAt("title", title)

	author := bleve.NewTextFieldMapping()
	author.Analyzer = simple.Name
	author.Store = true
	doc.AddFieldMappingsAt("author", author)

	description := bleve.NewTextFieldMapping()
	description.Analyzer = en.AnalyzerName
	description.Store = false
	doc.AddFieldMappingsAt("description", description)

	isbn := bleve.NewTextFieldMapping()
	isbn.Analyzer = keyword.Name
	isbn.Store = true
	doc.AddFieldMappingsAt("isbn", isbn)

	typ := bleve.NewTextFieldMapping()
	typ.Analyzer = keyword.Name
	typ.Store = false
	doc.AddFieldMappingsAt("type", typ)

	indexMapping.AddDocumentMapping(docTypeBook, doc)
	indexMapping.DefaultMapping = doc
	return indexMapping
}
