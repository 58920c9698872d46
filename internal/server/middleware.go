package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rsclarke/salonrelay/internal/logging"
)

// middleware wraps h with panic recovery and an access log.
func (s *ControlServer) middleware(h http.Handler, fields ...zap.Field) http.Handler {
	logger := s.Logger.Named("http").With(fields...)
	return accessLog(logger, middleware.Recoverer(h))
}

func accessLog(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			logging.Status(status),
			logging.RemoteAddr(r.RemoteAddr),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("request", fields...)
			return
		}
		logger.Debug("request", fields...)
	})
}
