package server

import (
	"crypto/tls"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"
	"golang.org/x/crypto/acme/autocert"

	"github.com/docuflow/docuflow/handlers"
)

type Config struct {
	Domains      []string
	CertCacheDir string
	HTTPPort     string
	HTTPSPort    string
	IdleTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Documents *handlers.DocumentHandler
	Search    *handlers.SearchHandler
	WebSocket *handlers.WebSocketHandler
}

func SetupRoutes(h Handlers, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/documents", h.Documents.Upload).Methods("POST")
	api.HandleFunc("/documents", h.Documents.List).Methods("GET")
	api.HandleFunc("/documents/{id:[0-9]+}", h.Documents.Get).Methods("GET")
	api.HandleFunc("/documents/{id:[0-9]+}", h.Documents.Delete).Methods("DELETE")
	api.HandleFunc("/documents/{id:[0-9]+}/reprocess", h.Documents.Reprocess).Methods("POST")
	api.HandleFunc("/documents/{id:[0-9]+}/download", h.Documents.Download).Methods("GET")

	api.HandleFunc("/search", h.Search.Search).Methods("POST")

	// WebSocket endpoints for real-time status updates.
	api.HandleFunc("/ws", h.WebSocket.Serve)
	api.HandleFunc("/ws/{document_id:[0-9]+}", h.WebSocket.ServeDocument)

	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}

// ServeProduction builds the server when we operate in a production environment.
func ServeProduction(n *negroni.Negroni, cfg Config) {
	autocertManager := autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.Domains...),
		Cache:      autocert.DirCache(cfg.CertCacheDir),
	}

	// Listen for HTTP requests on port 80 in a new goroutine. Use
	// autocertManager.HTTPHandler(nil) as the handler. This will send ACME
	// "http-01" challenge responses as necessary, and 302 redirect all other
	// requests to HTTPS.
	go func() {
		srv := &http.Server{
			Addr:         ":80",
			Handler:      autocertManager.HTTPHandler(nil),
			IdleTimeout:  time.Minute,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		err := srv.ListenAndServe()
		log.Fatal(err)
	}()

	// Configure the TLS config to use the autocertManager.GetCertificate function.
	tlsConfig := &tls.Config{
		GetCertificate:           autocertManager.GetCertificate,
		PreferServerCipherSuites: true,
		CurvePreferences:         []tls.CurveID{tls.X25519, tls.CurveP256},
	}

	srv := &http.Server{
		Addr:      ":" + cfg.HTTPSPort,
		Handler:   n,
		TLSConfig: tlsConfig,
		// WebSocket connections stay open well past normal request timeouts,
		// so no WriteTimeout here.
		IdleTimeout: time.Minute,
		ReadTimeout: 5 * time.Second,
	}

	err := srv.ListenAndServeTLS("", "") // Key and cert provided automatically by autocert.
	log.Fatal(err)
}

// ServeDevelopment starts the server when we operate in a dev environment.
func ServeDevelopment(s *http.Server) {
	log.Fatal(s.ListenAndServe())
}
