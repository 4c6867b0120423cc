package main

import (
	"net/http"

	"github.com/justinas/alice"
)

// routes wires the HTTP surface: the OAuth endpoints, the small JSON API, and
// the websocket upgrade.
func (a *app) routes(wsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /login", a.handleLogin)
	mux.HandleFunc("GET /callback", a.handleCallback)

	mux.HandleFunc("POST /listener-login", a.handleListenerLogin)
	mux.HandleFunc("GET /session/{id}", a.handleSession)
	mux.HandleFunc("POST /submit-track", a.handleSubmitTrack)
	mux.HandleFunc("POST /master-random-liked", a.handleRandomLiked)
	mux.HandleFunc("GET /airhorns", a.handleAirhorns)
	mux.HandleFunc("GET /healthz", a.handleHealth)

	mux.Handle("GET /ws", wsHandler)

	return alice.New(a.recoverPanic, a.logRequest, a.commonHeaders).Then(mux)
}
