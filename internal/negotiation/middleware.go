package negotiation

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Middleware creates HTTP middleware that checks the Picker-Client header.
// Requests without the header pass through untouched. A malformed header is
// rejected with 400, and so is a version older than minVersion when one
// is configured. The parsed ClientInfo is stored in the request context.
func Middleware(minVersion string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Health checks are infrastructure
			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(PickerClientHeader)
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			info, err := ParsePickerClientHeader(header)
			if err != nil {
				logger.Warn("invalid Picker-Client header",
					slog.String("header", header),
					slog.String("error", err.Error()))
				writeNegotiationError(w, http.StatusBadRequest, ClientHeaderInvalid,
					"Invalid Picker-Client header: "+err.Error())
				return
			}

			if OlderThan(info.Version, minVersion) {
				logger.Info("rejecting outdated client",
					slog.String("client_version", info.Version),
					slog.String("min_version", minVersion))
				writeNegotiationError(w, http.StatusBadRequest, ClientVersionUnsupported,
					"Client version "+info.Version+" is older than the minimum supported "+minVersion)
				return
			}

			ctx := context.WithValue(r.Context(), ClientContextKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// isExemptPath returns true for paths that skip the client check.
func isExemptPath(path string) bool {
	return path == "/health" || path == "/healthz"
}

// writeNegotiationError writes the standard error envelope.
func writeNegotiationError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = code
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}

// GetClientInfo retrieves the announced client from request context.
// Returns false if the request carried no Picker-Client header.
func GetClientInfo(ctx context.Context) (ClientInfo, bool) {
	info, ok := ctx.Value(ClientContextKey).(ClientInfo)
	return info, ok
}
