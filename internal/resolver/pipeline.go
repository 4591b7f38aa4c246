package resolver

import (
	"context"

	"github.com/concept-agent/backend/internal/extraction"
)

// Resolution holds the matches from all three stages.
type Resolution struct {
	ProfileMatches   []Match
	EventMatches     []Match
	EventAttrMatches []Match
}

// Resolve runs the full pipeline. The profile and event branches resolve
// concurrently; event attributes resolve afterwards, scoped by each resolved
// event. A stage that fails degrades to empty rather than failing the whole
// resolution.
func (r *Resolver) Resolve(ctx context.Context, query extraction.CanonicalQuery) Resolution {
	var res Resolution

	profileCh := make(chan []Match, 1)
	eventCh := make(chan []Match, 1)

	go func() {
		profileCh <- r.ResolveProfileAttributes(ctx, query.ProfileQueries)
	}()
	go func() {
		eventCh <- r.ResolveEvents(ctx, query.EventQueries)
	}()

	res.ProfileMatches = <-profileCh
	res.EventMatches = <-eventCh

	// Event attributes depend on resolved events. No events, no attribute
	// stage.
	if len(res.EventMatches) > 0 {
		res.EventAttrMatches = r.ResolveEventAttributes(ctx, res.EventMatches)
	}

	return res
}
