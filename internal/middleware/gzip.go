package middleware

import (
	"compress/gzip"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

var compress = chimiddleware.Compress(gzip.DefaultCompression)

// GzipMiddleware распаковывает тела запросов с Content-Encoding: gzip
// и сжимает ответы для клиентов, принимающих gzip.
func GzipMiddleware(next http.Handler) http.Handler {
	compressed := compress(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
			gr, err := gzip.NewReader(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Malformed gzip body")
				return
			}
			defer gr.Close()

			r.Body = gr
			r.Header.Del("Content-Encoding")
			r.ContentLength = -1
		}

		compressed.ServeHTTP(w, r)
	})
}
