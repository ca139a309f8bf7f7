package interfaces

import "context"

// Searcher is the read-only news search collaborator. Results are opaque to
// the core and returned to the decision process verbatim.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (string, error)
}
