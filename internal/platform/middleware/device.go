package middleware

import (
	"net/http"

	"github.com/mssola/useragent"

	"impfportal/pkg/requestcontext"
)

// Device parses the User-Agent header into a short human-readable summary
// ("Firefox 128 / Linux") stored in the context. Audit events for citizen
// facing mutations carry this summary so support staff can correlate a
// disputed booking with the device it came from.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary := summarizeUserAgent(r.Header.Get("User-Agent"))
		ctx := requestcontext.WithDeviceSummary(r.Context(), summary)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func summarizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	summary := name
	if version != "" {
		summary += " " + version
	}
	if osInfo := ua.OS(); osInfo != "" {
		summary += " / " + osInfo
	}
	if ua.Bot() {
		summary += " (bot)"
	}
	return summary
}
