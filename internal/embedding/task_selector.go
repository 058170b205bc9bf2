package embedding

// =============================================================================
// TASK TYPE SELECTION
// =============================================================================

// ContentType is the kind of text being embedded.
type ContentType string

const (
	ContentTypeChunk ContentType = "chunk" // Scraped page chunk
	ContentTypeQuery ContentType = "query" // Scene search query
	ContentTypeClaim ContentType = "claim" // Script claim checked by the judge
)

// SelectTaskType returns the GenAI task type for a content type.
func SelectTaskType(contentType ContentType) string {
	switch contentType {
	case ContentTypeChunk:
		return "RETRIEVAL_DOCUMENT"
	case ContentTypeQuery:
		return "RETRIEVAL_QUERY"
	case ContentTypeClaim:
		return "FACT_VERIFICATION"
	default:
		return "SEMANTIC_SIMILARITY"
	}
}
