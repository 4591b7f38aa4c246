package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/concept-agent/backend/internal/aggregate"
	"github.com/concept-agent/backend/internal/extraction"
	"github.com/concept-agent/backend/internal/query"
	"github.com/concept-agent/backend/internal/resolver"
	"github.com/concept-agent/backend/pkg/logger"
)

// WebSocketHandler streams per-stage progress of a resolution over one
// socket. Each inbound message is a query; the stages stream back as they
// complete, ending with the full result.
type WebSocketHandler struct {
	extractor query.Extractor
	resolver  *resolver.Resolver
	analyzer  *aggregate.Analyzer
}

func NewWebSocketHandler(extractor query.Extractor, res *resolver.Resolver, analyzer *aggregate.Analyzer) *WebSocketHandler {
	return &WebSocketHandler{
		extractor: extractor,
		resolver:  res,
		analyzer:  analyzer,
	}
}

type wsRequest struct {
	Query string `json:"query"`
}

type wsMessage struct {
	Type    string      `json:"type"`
	Stage   string      `json:"stage,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HandleResolve is the websocket loop for /ws/resolve.
func (h *WebSocketHandler) HandleResolve(c *websocket.Conn) {
	defer c.Close()

	for {
		var req wsRequest
		if err := c.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read failed", zap.Error(err))
			}
			return
		}

		req.Query = strings.TrimSpace(req.Query)
		if req.Query == "" {
			h.send(c, wsMessage{Type: "error", Error: "query is required"})
			continue
		}

		h.streamResolution(c, req.Query)
	}
}

func (h *WebSocketHandler) streamResolution(c *websocket.Conn, queryText string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	h.send(c, wsMessage{Type: "progress", Stage: "extraction"})

	canonical := h.extract(ctx, queryText)
	h.send(c, wsMessage{Type: "stage_result", Stage: "extraction", Payload: canonical})

	h.send(c, wsMessage{Type: "progress", Stage: "profile_attributes"})
	profileMatches := h.resolver.ResolveProfileAttributes(ctx, canonical.ProfileQueries)
	h.send(c, wsMessage{Type: "stage_result", Stage: "profile_attributes", Payload: profileMatches})

	h.send(c, wsMessage{Type: "progress", Stage: "events"})
	eventMatches := h.resolver.ResolveEvents(ctx, canonical.EventQueries)
	h.send(c, wsMessage{Type: "stage_result", Stage: "events", Payload: eventMatches})

	var attrMatches []resolver.Match
	if len(eventMatches) > 0 {
		h.send(c, wsMessage{Type: "progress", Stage: "event_attributes"})
		attrMatches = h.resolver.ResolveEventAttributes(ctx, eventMatches)
		h.send(c, wsMessage{Type: "stage_result", Stage: "event_attributes", Payload: attrMatches})
	}

	result := h.analyzer.Analyze(queryText, resolver.Resolution{
		ProfileMatches:   profileMatches,
		EventMatches:     eventMatches,
		EventAttrMatches: attrMatches,
	})
	h.send(c, wsMessage{Type: "result", Payload: result})
}

func (h *WebSocketHandler) extract(ctx context.Context, queryText string) extraction.CanonicalQuery {
	raw, err := h.extractor.Extract(ctx, queryText)
	if err != nil {
		logger.Warn("Extraction failed during streaming resolution, falling back to keywords",
			zap.Error(err),
		)
		return extraction.CanonicalQuery{ProfileQueries: extraction.KeywordQueries(queryText)}
	}
	canonical := extraction.Normalize(raw)
	if canonical.IsEmpty() {
		return extraction.CanonicalQuery{ProfileQueries: extraction.KeywordQueries(queryText)}
	}
	return canonical
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg wsMessage) {
	if err := c.WriteJSON(msg); err != nil {
		logger.Warn("WebSocket write failed", zap.Error(err))
	}
}
