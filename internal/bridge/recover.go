package bridge

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/softslim/soapbridge/internal/logging"
)

// recoverInternalErrors is the fallback for failures that happen before any
// dispatch context exists. It answers with a plain-text 500 carrying the
// request's correlation id, echoed from the CorrelationId header or
// generated fresh.
func recoverInternalErrors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			correlationID := resolveCorrelationID(r)
			logging.Error("unhandled error outside dispatch pipeline",
				zap.String("correlation_id", correlationID),
				zap.Any("panic", rec),
			)
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, "Internal error. correlationId=%s", correlationID)
		}()
		next.ServeHTTP(w, r)
	})
}

func resolveCorrelationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("CorrelationId")); id != "" {
		return id
	}
	return uuid.NewString()
}
