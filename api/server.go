/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/purchases/*   Purchase ledger transactions
  /api/sales/*       Sales ledger transactions
  /api/suppliers     Accounts
  /api/nominals      Chart of accounts
  /api/vat-codes     VAT rates
  /api/cash-books    Bank accounts and cash book enquiry

  Module groups are mounted from the engines handed to the Handler, so a
  deployment exposing only the purchase ledger simply builds one engine.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// modulePaths maps module codes onto their URL segments.
var modulePaths = map[string]string{
	"PL": "purchases",
	"SL": "sales",
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		for _, engine := range h.Engines {
			mh := &moduleHandler{h: h, engine: engine}
			path, ok := modulePaths[engine.Module.Code]
			if !ok {
				path = strings.ToLower(engine.Module.Code)
			}
			r.Route("/"+path, func(r chi.Router) {
				r.Get("/", mh.list)
				r.Post("/", mh.create)
				r.Get("/candidates", mh.candidates)
				r.Get("/aged", mh.aged)
				r.Get("/{id}", mh.get)
				r.Put("/{id}", mh.edit)
				r.Post("/{id}/void", mh.void)
			})
		}

		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", h.ListSuppliers)
			r.Post("/", h.CreateSupplier)
		})
		r.Route("/nominals", func(r chi.Router) {
			r.Get("/", h.ListNominals)
			r.Post("/", h.CreateNominal)
		})
		r.Route("/vat-codes", func(r chi.Router) {
			r.Get("/", h.ListVatCodes)
			r.Post("/", h.CreateVatCode)
		})
		r.Route("/cash-books", func(r chi.Router) {
			r.Get("/", h.ListCashBooks)
			r.Post("/", h.CreateCashBook)
			r.Get("/{id}/entries", h.CashBookEntries)
		})

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
