package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter builds the HTTP surface: the websocket gateway and a
// health probe.
func NewRouter(wsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/ws", wsHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}
