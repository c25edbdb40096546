package idempotency

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
)

// captureWriter is a gin.ResponseWriter that replaces the response's body
// sink with a buffer: nothing reaches the real writer until flush is called
// explicitly. This lets the Coordinator decide, after the handler has run
// and the cache write has been attempted, whether the buffered response is
// ever copied to the client at all, which a write-through buffer cannot do.
// statusCode defaults to 200 to match net/http's implicit
// WriteHeader-on-first-Write behavior.
type captureWriter struct {
	gin.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func newCaptureWriter(w gin.ResponseWriter) *captureWriter {
	return &captureWriter{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
}

func (w *captureWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *captureWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
}

// WriteHeaderNow is a no-op: the embedded ResponseWriter's default
// implementation commits headers to the real sink immediately, which would
// defeat buffering.
func (w *captureWriter) WriteHeaderNow() {}

// Status reports the buffered status code rather than the real writer's
// (uncommitted) status, so handler code inspecting c.Writer.Status() mid
// request sees what it just set.
func (w *captureWriter) Status() int { return w.statusCode }

// flush copies the buffered status and body to the real sink. Header values
// need no copying: the handler wrote them directly into the real writer's
// Header() map (captureWriter does not override Header()), so they have
// been live the whole time and only the status line and body were held
// back.
func (w *captureWriter) flush() {
	w.ResponseWriter.WriteHeader(w.statusCode)
	_, _ = w.ResponseWriter.Write(w.body.Bytes())
}

// hijackResponse installs a captureWriter in place of c.Writer and returns a
// restore function that puts the original writer back. Callers must defer
// the restore immediately so the original sink is reinstated on every exit
// path, including a handler panic propagated by gin's own recovery. restore
// does not flush: the caller decides separately, after inspecting the
// captured response, whether flush is ever called.
func hijackResponse(c *gin.Context) (capture *captureWriter, restore func()) {
	original := c.Writer
	capture = newCaptureWriter(original)
	c.Writer = capture
	return capture, func() { c.Writer = original }
}

// replay writes a cached Record to the response: status, then every
// captured header iff not already present on the response, then the body.
// No header is rewritten beyond what was captured at cache-write time.
func replay(c *gin.Context, record *Record) {
	header := c.Writer.Header()
	for name, values := range record.Headers {
		if _, present := header[name]; present {
			continue
		}
		for _, v := range values {
			header.Add(name, v)
		}
	}
	c.Writer.Header().Set("X-Idempotency-Replay", "true")
	c.Writer.WriteHeader(record.StatusCode)
	_, _ = c.Writer.Write(record.Body)
}
