package httpmw

import (
	"net/http"
)

// Chain wraps h with mws in declaration order: the first middleware is
// outermost. Nil entries are skipped so callers can build the list
// conditionally.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mw := mws[i]; mw != nil {
			h = mw(h)
		}
	}
	return h
}
