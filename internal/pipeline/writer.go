package pipeline

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-edge/internal/cachepolicy"
	"github.com/keithlinneman/linnemanlabs-edge/internal/cdn"
	"github.com/keithlinneman/linnemanlabs-edge/internal/compress"
	"github.com/keithlinneman/linnemanlabs-edge/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-edge/internal/routeclass"
)

// responseWriter finalizes edge headers just before the first byte goes
// out, when the origin's Content-Type and status are known. Page
// responses are additionally buffered (bounded) so a content-derived
// ETag can be set; oversized pages fall back to streaming without one.
type responseWriter struct {
	http.ResponseWriter
	pipe     *Pipeline
	request  *http.Request
	class    routeclass.Class
	sig      cdn.Signal
	decision ratelimit.Decision
	checked  bool
	start    time.Time

	status    int
	wroteDown bool          // underlying WriteHeader has been called
	buf       *bytes.Buffer // non-nil while buffering for the ETag
}

func (w *responseWriter) init() {
	pol := cachepolicy.For(w.class)
	if pol.WantsETag && w.request.Method == http.MethodGet {
		w.buf = &bytes.Buffer{}
	}
}

func (w *responseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	if w.buf != nil {
		// only successful pages earn a validator; anything else flushes
		if code != http.StatusOK {
			w.flush(false)
		}
		return
	}
	w.ensureHeader()
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.buf != nil {
		w.buf.Write(b)
		if w.buf.Len() > w.pipe.cfg.MaxETagBody {
			if err := w.flush(false); err != nil {
				return 0, err
			}
		}
		return len(b), nil
	}
	w.ensureHeader()
	return w.ResponseWriter.Write(b)
}

// Flush is a no-op while buffering; afterwards it defers to the
// underlying writer.
func (w *responseWriter) Flush() {
	if w.buf != nil {
		return
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// finish completes the response after the origin handler returns.
func (w *responseWriter) finish() {
	if w.buf != nil {
		w.flush(true)
		return
	}
	// handler wrote nothing at all
	w.ensureHeader()
}

// flush ends buffering: finalize headers (optionally with the content
// ETag), emit the status line, and write the held body.
func (w *responseWriter) flush(withETag bool) error {
	body := w.buf.Bytes()
	w.buf = nil

	if w.status == 0 {
		w.status = http.StatusOK
	}
	etag := ""
	if withETag && w.status == http.StatusOK && len(body) > 0 {
		etag = cachepolicy.ETagFor(body)
	}
	w.finalizeHeaders(etag)
	w.ResponseWriter.WriteHeader(w.status)
	w.wroteDown = true

	if len(body) > 0 {
		if _, err := w.ResponseWriter.Write(body); err != nil {
			return err
		}
	}
	return nil
}

func (w *responseWriter) ensureHeader() {
	if w.wroteDown {
		return
	}
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.finalizeHeaders("")
	w.ResponseWriter.WriteHeader(w.status)
	w.wroteDown = true
}

// finalizeHeaders layers the edge headers onto the response. Cache
// directives are additive: anything an upstream CDN or the origin
// already set wins.
func (w *responseWriter) finalizeHeaders(etag string) {
	h := w.Header()

	if w.sig.Provider != cdn.None {
		h.Set("X-CDN-Provider", string(w.sig.Provider))
		h.Set("X-CDN-Cache", w.sig.CacheStatus)
	}

	pol := cachepolicy.For(w.class)
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", pol.CacheControl)
	}
	if len(pol.Vary) > 0 && h.Get("Vary") == "" {
		h.Set("Vary", strings.Join(pol.Vary, ", "))
	}
	if etag != "" && h.Get("ETag") == "" {
		h.Set("ETag", etag)
	}

	if hint := compress.Hint(w.request.Header.Get("Accept-Encoding"), h.Get("Content-Type")); hint != "" {
		h.Set("X-Compress-Hint", hint)
	}

	if w.checked && w.decision.Limit > 0 {
		h.Set("X-RateLimit-Limit", strconv.FormatInt(w.decision.Limit, 10))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(w.decision.Remaining, 10))
	}

	if !w.pipe.cfg.Production && w.class.IsStatic() {
		h.Set("X-Asset-Type", string(w.class))
	}

	h.Set("X-Response-Time", strconv.FormatInt(time.Since(w.start).Milliseconds(), 10)+"ms")
}
