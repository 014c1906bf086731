package engine

import "golang.org/x/sync/errgroup"

// ModelDispatcher bounds concurrent CPU/GPU-bound model-inference calls
// issued from a worker's consume loop (§5: "CPU/GPU-bound model calls are
// dispatched to a thread pool so they do not block the scheduler"),
// grounded on the errgroup.SetLimit pattern MrWong99-glyphoxa uses to cap
// concurrent outbound probe fetches in internal/mcp/mcphost/calibrate.go. A
// single dispatcher is typically shared by every session on a host so the
// total number of concurrent outbound calls to a vendor's ASR/LLM API stays
// within a configured ceiling, regardless of how many sessions are active.
type ModelDispatcher struct {
	g *errgroup.Group
}

// NewModelDispatcher builds a dispatcher allowing at most limit concurrent
// in-flight calls. A limit below 1 is treated as 1.
func NewModelDispatcher(limit int) *ModelDispatcher {
	if limit < 1 {
		limit = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(limit)
	return &ModelDispatcher{g: g}
}

// Call runs fn on an errgroup goroutine and blocks the caller until it
// completes, so the worker's ordering is unchanged: the caller still
// processes one batch's result before pulling its next item from the
// queue. The dispatcher's limit caps how many such calls run at once
// across every worker sharing it; when the limit is reached, Call waits
// for a free slot before fn starts.
func (d *ModelDispatcher) Call(fn func()) {
	done := make(chan struct{})
	d.g.Go(func() error {
		defer close(done)
		fn()
		return nil
	})
	<-done
}
