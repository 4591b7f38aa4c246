package extraction

import (
	"strings"
	"unicode/utf8"

	prose "github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/concept-agent/backend/pkg/logger"
)

const maxKeywordQueries = 10

var stopWords = map[string]struct{}{
	// zh
	"的": {}, "是": {}, "在": {}, "有": {}, "和": {}, "与": {}, "或": {},
	"及": {}, "这": {}, "那": {}, "了": {}, "吗": {}, "呢": {}, "吧": {},
	// en
	"the": {}, "is": {}, "in": {}, "and": {}, "or": {}, "a": {}, "an": {},
	"this": {}, "that": {}, "of": {}, "to": {}, "for": {},
}

// KeywordQueries is the degraded extraction path used when the structured
// extraction service fails or returns nothing usable: the query is tokenized
// and the surviving keywords are resolved as profile-attribute queries.
func KeywordQueries(query string) []ProfileQuery {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	doc, err := prose.NewDocument(query, prose.WithExtraction(false), prose.WithTagging(false))
	if err != nil {
		logger.Warn("Keyword tokenization failed", zap.Error(err))
		return nil
	}

	seen := make(map[string]struct{})
	var queries []ProfileQuery
	for _, tok := range doc.Tokens() {
		word := strings.TrimSpace(tok.Text)
		if utf8.RuneCountInString(word) < 2 {
			continue
		}
		if _, ok := stopWords[strings.ToLower(word)]; ok {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}

		queries = append(queries, ProfileQuery{AttributeName: word, QueryText: word})
		if len(queries) >= maxKeywordQueries {
			break
		}
	}
	return queries
}
