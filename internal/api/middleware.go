package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"StackSave/internal/observability/metrics"
	loggerpkg "StackSave/pkg/logger"
)

const bearerPrefix = "Bearer "

// requireToken 校验共享令牌；token 为空时不做校验。
func requireToken(token string, next http.Handler) http.Handler {
	token = strings.TrimSpace(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		provided := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if !strings.HasPrefix(header, bearerPrefix) || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			status := http.StatusUnauthorized
			http.Error(w, http.StatusText(status), status)
			loggerpkg.Audit().Warn("access_denied",
				"path", r.URL.Path,
				"method", r.Method,
				"status", status,
				"remote", r.RemoteAddr,
			)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument 记录请求指标与审计日志。
func instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(aw, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(name, r.Method, aw.status, elapsed)
		loggerpkg.Audit().Info("api_request",
			"event", name,
			"method", r.Method,
			"path", r.URL.Path,
			"status", aw.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// auditWriter 包装 http.ResponseWriter 以捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
