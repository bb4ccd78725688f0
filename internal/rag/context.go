package rag

import (
	"fmt"
	"strings"

	"study-assistant/internal/models"
)

// AssembleContext builds the model context and the answer sources.
//
// Without retrieved passages the FAQs are the whole context (sourced as
// "FAQ Database"), or a no-documents notice when there are none. With
// passages the sources are the passage filenames and at most
// models.MaxSupplementFAQs FAQs are appended without touching the sources.
func AssembleContext(results []models.SearchResult, faqs []models.FAQItem) (string, []string) {
	if len(results) == 0 {
		if len(faqs) == 0 {
			return models.NoDocumentsNotice, []string{}
		}
		return models.FAQHeader + formatFAQs(faqs, models.PassageSeparator), []string{models.FAQSource}
	}

	sources := make([]string, 0, len(results))
	seen := make(map[string]bool, len(results))
	passages := make([]string, 0, len(results))
	for _, r := range results {
		passages = append(passages, r.Chunk.Content)
		if name := r.Chunk.Filename; name != "" && !seen[name] {
			seen[name] = true
			sources = append(sources, name)
		}
	}

	context := strings.Join(passages, models.PassageSeparator)
	if len(faqs) > 0 {
		context += models.AdditionalFAQsHeader + formatFAQs(faqs[:min(len(faqs), models.MaxSupplementFAQs)], "\n")
	}
	return context, sources
}

func formatFAQs(faqs []models.FAQItem, sep string) string {
	parts := make([]string, len(faqs))
	for i, f := range faqs {
		parts[i] = fmt.Sprintf("Q: %s\nA: %s", f.Question, f.Answer)
	}
	return strings.Join(parts, sep)
}
