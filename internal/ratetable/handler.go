package ratetable

import (
	"io"
	"net/http"
	"strings"
)

// maxZipBody bounds the request body; a zip code is a few bytes.
const maxZipBody = 1 << 10

// Handler answers POST requests whose body is a zip code with the rate as
// plain text. Unknown zips get 404 and an empty body gets 400.
func Handler(t *Table) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxZipBody))
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}
		zip := strings.TrimSpace(string(body))
		if zip == "" {
			http.Error(w, "zip code required", http.StatusBadRequest)
			return
		}

		rate, ok := t.Find(zip)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, rate.String())
	})
}
