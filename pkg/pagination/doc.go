// Package pagination builds request parameters for FrontApp's cursor-by-URL
// pagination.
//
// The first page is described by the extraction configuration. Every later
// page is described entirely by the continuation token the previous page
// returned in _pagination.next: an absolute URL whose query string already
// carries the filters, sort order and page token. Configuration filters are
// never re-applied once a token exists.
//
// Example usage:
//
//	state := pagination.NewState("")
//	for {
//		params, err := pagination.ParamsFor(cfg, state.Token())
//		// ... fetch and emit the page ...
//		next, err := pagination.ExtractContinuationToken(body)
//		if err := state.Advance(next); err != nil {
//			return err
//		}
//		if state.Done() {
//			break
//		}
//	}
package pagination
