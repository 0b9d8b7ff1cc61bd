package feed

import "github.com/ljunqueira/AgendaBlocoCarnaval/store/sqlite"

// ShouldSync decides whether a fetched document needs reconciling, given
// its change marker and the previously stored feed state. Pure comparison;
// the caller writes the new marker only after reconciliation succeeds.
//
//   - No prior state: proceed (first sync for this source).
//   - No marker on the document: proceed (cannot verify, always process).
//   - Marker equals the stored one: skip.
func ShouldSync(marker string, state *sqlite.FeedState) bool {
	if state == nil {
		return true
	}
	if marker == "" {
		return true
	}
	return marker != state.ETag
}
