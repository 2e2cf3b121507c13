// Package api assembles the HTTP surface: health probes, metrics, docs,
// the versioned REST routes and the websocket gateway.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"ticketchat/pkg/api/handlers"
	"ticketchat/pkg/auth"
	"ticketchat/pkg/chat"
	"ticketchat/pkg/realtime"
	"ticketchat/pkg/store"
	"ticketchat/pkg/telemetry"
)

// NewRouter wires every endpoint. Liveness, readiness, metrics and docs sit
// outside the auth boundary; everything under /v1 goes through it.
func NewRouter(svc *chat.Service, hub *realtime.Hub, mw *auth.Middleware, st *store.Store) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if st == nil || !st.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.WrapHandler)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(telemetry.Middleware, mw.Handle)

	handlers.RegisterChats(v1, svc)
	v1.HandleFunc("/ws", hub.ServeWS).Methods(http.MethodGet)

	return r
}
