package httpmw

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-edge/internal/log"
	"github.com/keithlinneman/linnemanlabs-edge/internal/xerrors"
)

// Recover converts handler panics into 500s instead of dropped
// connections. onPanic (may be nil) feeds the panic counter.
func Recover(base log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if onPanic != nil {
					onPanic()
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.Wrap(e, "panic")
				} else {
					err = xerrors.Newf("panic: %v", rec)
				}

				base.With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
				).Error(r.Context(), err, "httpserver panic recovered")

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
