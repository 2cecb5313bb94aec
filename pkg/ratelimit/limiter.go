package ratelimit

import (
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// Лимиты Binance USD-M по умолчанию: 2400 weight/min
const (
	DefaultRate  = 40
	DefaultBurst = 80
)

// New создаёт token bucket с полным ведром.
//
// Binance считает лимит REST не в запросах, а в «весе»: цена обычно 1,
// positionRisk 5. Каждый запрос списывает свой вес через WaitN.
//
//	limiter := ratelimit.New(40, 80)  // 2400 weight/min, burst 80
//	err := limiter.WaitN(ctx, 5)      // positionRisk
//
// perSecond <= 0 - DefaultRate, burst <= 0 - вдвое больше rate,
// burst меньше rate поднимается до rate.
func New(perSecond, burst float64) *rate.Limiter {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	if burst <= 0 {
		burst = perSecond * 2
	}
	if burst < perSecond {
		burst = perSecond
	}
	return rate.NewLimiter(rate.Limit(perSecond), int(math.Ceil(burst)))
}

// Registry раздаёт один limiter на ключ (API key аккаунта), чтобы все
// клиенты одного аккаунта делили общий лимит биржи.
type Registry struct {
	perSecond float64
	burst     float64
	limiters  map[string]*rate.Limiter
	mu        sync.Mutex
}

func NewRegistry(perSecond, burst float64) *Registry {
	return &Registry{
		perSecond: perSecond,
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Get возвращает limiter ключа, создавая его при первом обращении
func (r *Registry) Get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[key]
	if !ok {
		l = New(r.perSecond, r.burst)
		r.limiters[key] = l
	}
	return l
}
