package models

import "time"

// file types accepted by the extractor registry
const (
	FileTypePDF  = "pdf"
	FileTypeDOCX = "docx"
	FileTypeXLSX = "xlsx"
	FileTypeXLSM = "xlsm"
	FileTypePPTX = "pptx"
	FileTypeODS  = "ods"
	FileTypeMD   = "md"
	FileTypeTXT  = "txt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Document is the catalog record of one ingested file
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	ChunkCount int       `json:"chunk_count"`
	UploadDate time.Time `json:"upload_date"`
}

// ChatMessage is a single turn of a session. Sources is only set on
// assistant messages.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []string  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}

type FAQItem struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

type Stats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	FAQs      int `json:"faqs"`
}

type QueryRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
}

// SeedFAQs is the reference FAQ set inserted by the seed operation
var SeedFAQs = []FAQItem{
	{
		Question: "What is RAG?",
		Answer:   "RAG (Retrieval Augmented Generation) is a technique that enhances LLM responses by retrieving relevant information from a knowledge base before generating answers.",
		Category: "Technical",
	},
	{
		Question: "How do I study effectively?",
		Answer:   "Effective studying involves active recall, spaced repetition, understanding concepts rather than memorizing, and taking regular breaks.",
		Category: "Study Tips",
	},
	{
		Question: "What are embeddings?",
		Answer:   "Embeddings are numerical representations of text that capture semantic meaning, allowing computers to understand and compare text similarity.",
		Category: "Technical",
	},
	{
		Question: "How can I improve retention?",
		Answer:   "Improve retention by teaching others, using mnemonics, creating visual aids, and reviewing material multiple times over several days.",
		Category: "Study Tips",
	},
	{
		Question: "What is vector search?",
		Answer:   "Vector search is a method of finding similar items by comparing their vector embeddings in high-dimensional space using distance metrics.",
		Category: "Technical",
	},
}
