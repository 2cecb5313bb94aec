package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"sync/atomic"

	"polytrade/pkg/crypto"
	"polytrade/pkg/ratelimit"
	"polytrade/pkg/utils"
)

// Лимит неудачных попыток входа: 1 в секунду, не больше 5 подряд
const (
	authFailureRate  = 1
	authFailureBurst = 5
)

// verifyPassword - проверка bcrypt, подменяется в тестах
var verifyPassword = crypto.VerifyPassword

// verifiedCache помнит HMAC последнего пароля, прошедшего bcrypt.
// Ключ HMAC случайный на процесс, сам пароль в памяти не хранится.
type verifiedCache struct {
	key  []byte
	last atomic.Pointer[[]byte]
}

func newVerifiedCache() *verifiedCache {
	key := make([]byte, sha256.Size)
	if _, err := rand.Read(key); err != nil {
		// без ключа кэш выключен, каждый запрос идёт через bcrypt
		key = nil
	}
	return &verifiedCache{key: key}
}

func (c *verifiedCache) sum(pass string) []byte {
	m := hmac.New(sha256.New, c.key)
	m.Write([]byte(pass))
	return m.Sum(nil)
}

// check сверяет пароль с кэшем за постоянное время, при промахе - через bcrypt
func (c *verifiedCache) check(pass, hash string) bool {
	if c.key == nil {
		return verifyPassword(pass, hash) == nil
	}
	sum := c.sum(pass)
	if last := c.last.Load(); last != nil && hmac.Equal(sum, *last) {
		return true
	}
	if verifyPassword(pass, hash) != nil {
		return false
	}
	c.last.Store(&sum)
	return true
}

// PasswordAuth - HTTP Basic Authentication по паролю приложения
//
// Назначение:
// Панель однопользовательская: логин - AppUser, пароль проверяется по
// bcrypt хешу (APP_PASSWORD_HASH или хеш APP_PASSWORD при старте).
//
// Безопасность:
// - Имя сравнивается за постоянное время
// - Пароль сверяется через bcrypt, последний верный запоминается как HMAC
// - Неудачные попытки ограничены token bucket: при исчерпании - 429
//
// Пустой hash отключает проверку (локальный запуск без пароля).
//
// Использование:
//
//	api := router.PathPrefix("/api/v1").Subrouter()
//	api.Use(middleware.PasswordAuth(cfg.Security.AppUser, cfg.Security.AppPasswordHash))
func PasswordAuth(user, hash string) func(http.Handler) http.Handler {
	if hash == "" {
		utils.L().Warn("app password is not set, API is not protected")
		return func(next http.Handler) http.Handler { return next }
	}

	failures := ratelimit.New(authFailureRate, authFailureBurst)
	verified := newVerifiedCache()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqUser, reqPass, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}

			userMatch := subtle.ConstantTimeCompare([]byte(reqUser), []byte(user)) == 1
			if userMatch && verified.check(reqPass, hash) {
				next.ServeHTTP(w, r)
				return
			}

			if !failures.Allow() {
				utils.L().Warn("too many failed login attempts", utils.String("remote", r.RemoteAddr))
				http.Error(w, "Too many attempts", http.StatusTooManyRequests)
				return
			}

			utils.L().Info("failed login attempt", utils.String("remote", r.RemoteAddr))
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="polytrade"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
