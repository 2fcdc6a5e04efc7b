package httpserver

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"termledger/backend/services/ledger-service/internal/http/handlers"
	"termledger/backend/services/ledger-service/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	Viewer        *handlers.ViewerHandlers
	Admin         *handlers.AdminHandlers
	HealthHandler http.HandlerFunc
	ChangesStream http.HandlerFunc
}

// NewRouter wires HTTP routes with middleware.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", method(http.MethodGet, deps.HealthHandler))
	mux.Handle("/metrics", method(http.MethodGet, promhttp.Handler()))

	authenticated := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, authMiddleware)
	}
	admin := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, authMiddleware, middleware.RequireAdmin)
	}

	mux.Handle("/terminals", method(http.MethodGet, authenticated(deps.Viewer.Terminals)))
	mux.Handle("/users/me", method(http.MethodGet, authenticated(deps.Viewer.Me)))
	mux.Handle("/sessions/me", method(http.MethodGet, authenticated(deps.Viewer.MySessions)))
	mux.Handle("/sessions/start", method(http.MethodPost, authenticated(deps.Viewer.Start)))
	mux.Handle("/sessions/stop", method(http.MethodPost, authenticated(deps.Viewer.Stop)))

	mux.Handle("/admin/users", methods(map[string]http.Handler{
		http.MethodGet:  admin(deps.Admin.ListUsers),
		http.MethodPost: admin(deps.Admin.CreateUser),
	}))
	mux.Handle("/admin/users/{id}", methods(map[string]http.Handler{
		http.MethodPatch:  admin(deps.Admin.RenameUser),
		http.MethodDelete: admin(deps.Admin.DeleteUser),
	}))
	mux.Handle("/admin/users/{id}/credit", method(http.MethodPost, admin(deps.Admin.Credit)))
	mux.Handle("/admin/terminals/{id}/force-stop", method(http.MethodPost, admin(deps.Admin.ForceStop)))
	mux.Handle("/admin/terminals/{id}/offline", method(http.MethodPost, admin(deps.Admin.Offline)))
	mux.Handle("/admin/terminals/{id}/online", method(http.MethodPost, admin(deps.Admin.Online)))
	mux.Handle("/admin/settlements", method(http.MethodGet, admin(deps.Admin.Settlements)))
	mux.Handle("/admin/settlements/retry", method(http.MethodPost, admin(deps.Admin.RetrySettlements)))

	if deps.ChangesStream != nil {
		mux.Handle("/ws/changes", method(http.MethodGet, authenticated(deps.ChangesStream)))
	}

	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return methods(map[string]http.Handler{expected: handler})
}

func methods(byMethod map[string]http.Handler) http.Handler {
	allowed := make([]string, 0, len(byMethod))
	for m := range byMethod {
		allowed = append(allowed, m)
	}
	allow := strings.Join(allowed, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler, ok := byMethod[r.Method]
		if !ok {
			w.Header().Set("Allow", allow)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
