package models

const (
	ThinkTag = `(?s)<think>.*?</think>`

	FAQSource            = "FAQ Database"
	FAQHeader            = "Based on frequently asked questions:\n\n"
	AdditionalFAQsHeader = "\n\nAdditional FAQs:\n"
	NoDocumentsNotice    = "No relevant documents found in the knowledge base."
	PassageSeparator     = "\n\n"

	// at most this many FAQs ride along with retrieved passages
	MaxSupplementFAQs = 3

	MetaFilename   = "filename"
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
)

var (
	SystemPrompt = "You are a helpful student study assistant. Use the provided context to answer questions accurately. " +
		"If the context doesn't contain the answer, say so politely and offer general guidance based on the question topic."

	UserPromptTemplate = `Context:
%s

Question: %s

Provide a clear, helpful answer based on the context above.`
)
