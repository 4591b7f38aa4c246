package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/concept-agent/backend/pkg/logger"
)

// ProfileQuery is one canonical person-attribute query.
type ProfileQuery struct {
	AttributeName string
	QueryText     string
}

// EventQuery is one canonical behavioral-event query together with the
// attribute queries declared under it.
type EventQuery struct {
	Description      string
	AttributeQueries []string
}

// CanonicalQuery is the normalized form of a structured-extraction payload.
type CanonicalQuery struct {
	ProfileQueries []ProfileQuery
	EventQueries   []EventQuery
}

func (q CanonicalQuery) IsEmpty() bool {
	return len(q.ProfileQueries) == 0 && len(q.EventQueries) == 0
}

// rawPayload mirrors the two top-level shapes the extraction service emits:
// either the fields sit at the top level, or everything is nested under
// "structured_query". Individual fields stay raw so each one can be decoded
// as whichever of its known shapes it actually arrived in.
type rawPayload struct {
	StructuredQuery  json.RawMessage `json:"structured_query"`
	PersonAttributes json.RawMessage `json:"person_attributes"`
	BehavioralEvents json.RawMessage `json:"behavioral_events"`
	Events           json.RawMessage `json:"events"`
}

type rawEvent struct {
	EventType        string          `json:"event_type"`
	EventDescription string          `json:"event_description"`
	Attributes       json.RawMessage `json:"attributes"`
}

// Normalize converts a raw structured-extraction payload into a
// CanonicalQuery. It tolerates both known shapes for every field, trims all
// strings, drops entries that are empty after trimming, and preserves the
// input ordering. It never fails: a malformed payload yields an empty
// CanonicalQuery and individual bad entries are skipped with a warning.
func Normalize(raw json.RawMessage) CanonicalQuery {
	var out CanonicalQuery
	if len(raw) == 0 {
		return out
	}

	var payload rawPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warn("Extraction payload is not a JSON object, ignoring", zap.Error(err))
		return out
	}

	if len(payload.StructuredQuery) > 0 && !isJSONNull(payload.StructuredQuery) {
		var nested rawPayload
		if err := json.Unmarshal(payload.StructuredQuery, &nested); err != nil {
			logger.Warn("Malformed structured_query field, ignoring", zap.Error(err))
		} else {
			nested.StructuredQuery = nil
			payload = nested
		}
	}

	out.ProfileQueries = decodeProfileQueries(payload.PersonAttributes)

	eventsRaw := payload.BehavioralEvents
	if len(eventsRaw) == 0 || isJSONNull(eventsRaw) {
		eventsRaw = payload.Events
	}
	out.EventQueries = decodeEventQueries(eventsRaw)

	return out
}

// decodeProfileQueries accepts either an object of name->value pairs or a
// bare list of names. Anything else yields an empty list. Object keys are
// walked with a token decoder so the payload's own ordering is kept; a plain
// map would shuffle it.
func decodeProfileQueries(raw json.RawMessage) []ProfileQuery {
	var queries []ProfileQuery

	pairs, ok := decodePairs(raw)
	if ok {
		for _, p := range pairs {
			name := strings.TrimSpace(p.key)
			value := strings.TrimSpace(p.value)
			if name == "" || value == "" {
				continue
			}
			queries = append(queries, ProfileQuery{
				AttributeName: name,
				QueryText:     fmt.Sprintf("%s: %s", name, value),
			})
		}
		return queries
	}

	names, ok := decodeStringList(raw)
	if !ok {
		return nil
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		queries = append(queries, ProfileQuery{AttributeName: name, QueryText: name})
	}
	return queries
}

func decodeEventQueries(raw json.RawMessage) []EventQuery {
	if len(raw) == 0 || isJSONNull(raw) {
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		logger.Warn("Event list is not a JSON array, ignoring", zap.Error(err))
		return nil
	}

	var queries []EventQuery
	for i, entry := range entries {
		var ev rawEvent
		if err := json.Unmarshal(entry, &ev); err != nil {
			logger.Warn("Skipping malformed event entry",
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}

		desc := strings.TrimSpace(ev.EventType)
		if desc == "" {
			desc = strings.TrimSpace(ev.EventDescription)
		}
		// An event with no usable description is dropped entirely, even if
		// its attributes would have been usable.
		if desc == "" {
			logger.Warn("Skipping event entry with no description", zap.Int("index", i))
			continue
		}

		queries = append(queries, EventQuery{
			Description:      desc,
			AttributeQueries: decodeAttributeTexts(ev.Attributes),
		})
	}
	return queries
}

// decodeAttributeTexts handles the same object-or-list ambiguity as
// decodeProfileQueries but flattens into plain query texts.
func decodeAttributeTexts(raw json.RawMessage) []string {
	var texts []string

	pairs, ok := decodePairs(raw)
	if ok {
		for _, p := range pairs {
			name := strings.TrimSpace(p.key)
			value := strings.TrimSpace(p.value)
			if name == "" || value == "" {
				continue
			}
			texts = append(texts, fmt.Sprintf("%s: %s", name, value))
		}
		return texts
	}

	names, ok := decodeStringList(raw)
	if !ok {
		return nil
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		texts = append(texts, name)
	}
	return texts
}

type pair struct {
	key   string
	value string
}

// decodePairs decodes a JSON object into key/value pairs in document order.
// Returns ok=false when the raw value is not an object.
func decodePairs(raw json.RawMessage) ([]pair, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil { // opening brace
		return nil, false
	}

	var pairs []pair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			logger.Warn("Truncated attribute object, keeping entries decoded so far", zap.Error(err))
			break
		}
		key, _ := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			logger.Warn("Skipping undecodable attribute value",
				zap.String("attribute", key),
				zap.Error(err),
			)
			break
		}

		text, ok := scalarText(value)
		if !ok {
			logger.Warn("Skipping non-scalar attribute value", zap.String("attribute", key))
			continue
		}
		pairs = append(pairs, pair{key: key, value: text})
	}
	return pairs, true
}

func decodeStringList(raw json.RawMessage) ([]string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}

	var values []any
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return nil, false
	}

	var names []string
	for _, v := range values {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, true
}

func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return fmt.Sprintf("%v", t), true
	default:
		return "", false
	}
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
