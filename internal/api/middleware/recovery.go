package middleware

import (
	"net/http"
	"runtime/debug"

	"polytrade/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers
//
// Паника логируется со stack trace, клиент получает 500 без деталей.
// Сервер продолжает обслуживать остальные запросы.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				utils.L().Error("panic in handler",
					utils.Any("panic", err),
					utils.String("method", r.Method),
					utils.String("path", r.URL.Path),
					utils.String("stack", string(debug.Stack())),
				)

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
