package middlewares

import (
	"net/http"
	"time"

	"kittybook/pkg/utils"
)

func ResponseTimeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		utils.Logger.WithField("duration_ms", time.Since(start).Milliseconds()).
			Infof("%s %s", r.Method, r.URL.Path)
	})
}
