package middleware

import "net/http"

// Handle registers h on mux under pattern with the pattern recorded for request logging.
func Handle(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sw, ok := w.(*statusWriter); ok {
			sw.route = pattern
		}
		h.ServeHTTP(w, r)
	}))
}
