package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/fr"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for library documents.
//
// Text fields use the French analyzer (elision, stop words, light
// stemming) on accent-folded input. Owner, category and style are exact
// keywords for filtering.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = fr.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	text := func(store, vectors bool) *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = fr.AnalyzerName
		fm.Store = store
		fm.IncludeTermVectors = vectors
		return fm
	}
	keywordField := func(store bool) *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = store
		fm.IncludeInAll = false
		return fm
	}
	displayField := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Index = false
		fm.Store = true
		fm.IncludeInAll = false
		return fm
	}

	docMapping.AddFieldMappingsAt("title", text(false, true))
	docMapping.AddFieldMappingsAt("authors", text(false, true))
	docMapping.AddFieldMappingsAt("series_name", text(true, false))
	docMapping.AddFieldMappingsAt("description", text(false, false))
	// Full text is the bulk of the index; never stored.
	docMapping.AddFieldMappingsAt("text", text(false, false))

	docMapping.AddFieldMappingsAt("id", keywordField(true))
	docMapping.AddFieldMappingsAt("owner_id", keywordField(true))
	docMapping.AddFieldMappingsAt("category", keywordField(true))
	docMapping.AddFieldMappingsAt("style", keywordField(true))

	docMapping.AddFieldMappingsAt("title_display", displayField())
	docMapping.AddFieldMappingsAt("authors_display", displayField())

	updatedAt := bleve.NewNumericFieldMapping()
	updatedAt.Store = true
	docMapping.AddFieldMappingsAt("updated_at", updatedAt)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
