package middleware

import (
	"net/http"
	"strings"
)

// defaultOrigins - dev серверы фронтенда, разрешены всегда
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:5173", // Vite dev server
	"http://127.0.0.1:5173",
}

// CORS - middleware для Cross-Origin Resource Sharing
//
// origins - список через запятую (ALLOWED_ORIGINS). "*" разрешает любой origin.
// Для разрешённых origins отдаётся конкретный origin и credentials,
// поскольку браузер шлёт Basic auth.
//
// Preflight (OPTIONS) отвечает 200 без вызова handler.
func CORS(origins string) func(http.Handler) http.Handler {
	allowAll := strings.TrimSpace(origins) == "*"
	allowed := make(map[string]bool, len(defaultOrigins))
	for _, origin := range defaultOrigins {
		allowed[origin] = true
	}
	for _, origin := range strings.Split(origins, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" && origin != "*" {
			allowed[origin] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case origin == "":
				// не браузер (curl)
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowAll || allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			// для остальных origins заголовков нет - браузер заблокирует

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
