package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter 按小时窗口计数的限流器，键为身份+桶名
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

type rateWindow struct {
	start time.Time
	count int
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// Allow 在指定键上消费一次配额
func (r *RateLimiter) Allow(key string, limit int) bool {
	if limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[key]
	if !ok || now.Sub(w.start) >= time.Hour {
		r.windows[key] = &rateWindow{start: now, count: 1}
		return true
	}
	if w.count >= limit {
		return false
	}
	w.count++
	return true
}

// Limit 限流中间件：已认证请求按用户计数，匿名请求按 IP 计数
func (r *RateLimiter) Limit(bucket string, userLimit, anonLimit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		limit := anonLimit
		if actor := GetActor(c); actor != nil {
			key = bucket + ":user:" + actor.UserID
			limit = userLimit
		} else {
			key = bucket + ":ip:" + c.ClientIP()
		}

		if !r.Allow(key, limit) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    42900,
				"message": "请求过于频繁，请稍后再试",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
