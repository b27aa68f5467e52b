package middleware

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TsutomuTakai/pp-case-api/internal/cache"
)

// CacheListing serves GET responses from the cache when possible and
// stores successful responses on the way out. It must only be attached
// to unauthenticated routes: cache keys carry no caller identity, so a
// cached authenticated response would leak across principals.
func CacheListing(store cache.Store, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cache.ListingKey(c.Request.URL.RequestURI())

		if payload, ok := store.GetListing(c.Request.Context(), key); ok {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
			c.Abort()
			return
		}

		writer := &bodyCaptureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer
		c.Header("X-Cache", "MISS")

		c.Next()

		if c.Writer.Status() == http.StatusOK {
			if err := store.SetListing(c.Request.Context(), key, writer.body.Bytes()); err != nil {
				logger.Warn("⚠️ [Middleware] Failed to cache listing response", "error", err)
			}
		}
	}
}

// bodyCaptureWriter duplicates the response body so it can be cached
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
