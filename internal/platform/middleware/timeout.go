package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// timeoutWriter serializes every write to the underlying ResponseWriter.
// The handler runs in its own goroutine; once the deadline fires, the
// middleware emits the 504 through the same lock and all later handler
// writes land here instead of on the wire. Header mutations go to a private
// map that is copied out only when the header is committed.
type timeoutWriter struct {
	mu          sync.Mutex
	dst         http.ResponseWriter
	header      http.Header
	timedOut    bool
	wroteHeader bool
}

func newTimeoutWriter(dst http.ResponseWriter) *timeoutWriter {
	return &timeoutWriter{dst: dst, header: make(http.Header)}
}

func (w *timeoutWriter) Header() http.Header { return w.header }

func (w *timeoutWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut || w.wroteHeader {
		return
	}
	w.wroteHeader = true
	copyHeader(w.dst.Header(), w.header)
	w.dst.WriteHeader(code)
}

func (w *timeoutWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		// Dropped; the 504 already went out.
		return len(p), nil
	}
	if !w.wroteHeader {
		w.wroteHeader = true
		copyHeader(w.dst.Header(), w.header)
	}
	return w.dst.Write(p)
}

// timeout emits the 504 unless the handler already committed a response,
// and silences everything after it.
func (w *timeoutWriter) timeout(body []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return
	}
	w.timedOut = true
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.dst.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
	w.dst.WriteHeader(http.StatusGatewayTimeout)
	w.dst.Write(body)
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = vv
	}
}

// RequestTimeout sets a context deadline on each incoming request. If the
// deadline passes before the handler completes, a 504 is written and any
// output the still-running handler produces afterwards is discarded.
// Handlers that need longer (key derivation under load) should budget
// within the configured timeout rather than detaching from the request
// context.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))
			w := newTimeoutWriter(c.Response().Writer)
			c.Response().Writer = w

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					w.timeout([]byte(`{"message":"request processing exceeded the allowed time limit"}`))
					return nil
				}
				// Other cancellation reasons (client disconnect).
				return ctx.Err()
			}
		}
	}
}
