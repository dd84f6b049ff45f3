/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the till frontend
  5. BasicAuth:  /api/* only, against the identity directory

AUTHORIZATION:
  Every authenticated user may run the till (shifts, sales, expenses,
  returns, customers, quotes). Catalog and discount rule writes need ADMIN
  or MANAGER. Backup import needs ADMIN since it replaces the whole state.

SEE ALSO:
  - handlers.go: Handler implementations
  - identity/directory.go: Credential checks
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/cashdrawer/identity"
	"github.com/warp/cashdrawer/pos"
)

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

	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(h.BasicAuth)

		r.Get("/me", h.Me)

		// Shift routes
		r.Route("/shifts", func(r chi.Router) {
			r.Get("/", h.ListShifts)
			r.Get("/active", h.GetActiveShift)
			r.Get("/history", h.GetShiftHistory)
			r.Post("/open", h.OpenShift)
			r.Post("/close", h.CloseShift)
			r.Get("/{id}/summary", h.GetShiftSummary)
			r.Get("/{id}/expenses", h.GetShiftExpenses)
			r.Get("/{id}/sales", h.GetShiftSales)
		})

		// Sale routes
		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.ListSales)
			r.Post("/", h.RecordSale)
			r.Get("/top", h.GetTopProducts)
		})

		// Expense routes
		r.Route("/expenses", func(r chi.Router) {
			r.Post("/", h.AddExpense)
			r.Delete("/{id}", h.DeleteExpense)
		})

		// Return routes
		r.Route("/returns", func(r chi.Router) {
			r.Post("/", h.CreateReturn)
			r.Get("/", h.ListReturns)
			r.Get("/pending", h.ListPendingReturns)
			r.Post("/{id}/process", h.ProcessReturn)
			r.Post("/{id}/reject", h.RejectReturn)
		})

		// Catalog routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.With(RequireRole(canManage)).Post("/", h.CreateProduct)
			r.With(RequireRole(canManage)).Put("/{id}", h.UpdateProduct)
			r.With(RequireRole(canManage)).Delete("/{id}", h.DeleteProduct)
		})
		r.Route("/variants", func(r chi.Router) {
			r.Get("/lookup", h.LookupVariant)
			r.Get("/low-stock", h.ListLowStock)
			r.With(RequireRole(canManage)).Post("/{id}/stock", h.AdjustStock)
		})

		// Customer routes
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Post("/", h.CreateCustomer)
			r.Get("/top", h.GetTopCustomers)
			r.Get("/{id}", h.GetCustomer)
			r.Put("/{id}", h.UpdateCustomer)
			r.Delete("/{id}", h.DeleteCustomer)
		})

		// Discount routes
		r.Route("/discounts", func(r chi.Router) {
			r.Get("/", h.ListDiscounts)
			r.Get("/coupon/{code}", h.GetCoupon)
			r.Post("/quote", h.QuoteCart)
			r.Post("/{id}/redeem", h.RedeemDiscount)
			r.With(RequireRole(canManage)).Post("/", h.CreateDiscount)
			r.With(RequireRole(canManage)).Put("/{id}", h.UpdateDiscount)
			r.With(RequireRole(canManage)).Delete("/{id}", h.DeleteDiscount)
			r.With(RequireRole(canManage)).Post("/{id}/toggle", h.ToggleDiscount)
		})

		// Backup routes
		r.Route("/backup", func(r chi.Router) {
			r.Use(RequireRole(canManage))
			r.Get("/", h.ExportBackup)
			r.With(RequireRole(isAdmin)).Post("/", h.ImportBackup)
		})
	})

	return r
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// BasicAuth checks HTTP basic credentials against the user directory and
// stores the user in the request context.
func (h *Handler) BasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="cashdrawer"`)
			writeError(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		user, err := h.Users.Authenticate(pos.UserID(id), password)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="cashdrawer"`)
			writeDomainError(w, "Invalid credentials", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), user)))
	})
}

func canManage(r identity.Role) bool { return r.CanManage() }
func isAdmin(r identity.Role) bool   { return r == identity.RoleAdmin }

// RequireRole rejects requests whose user role fails allowed with 403.
func RequireRole(allowed func(identity.Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := identity.CurrentUser(r.Context())
			if !ok || !allowed(u.Role) {
				writeError(w, http.StatusForbidden, "Not allowed for this role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
