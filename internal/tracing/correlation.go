// Package tracing provides request correlation ID propagation for the HTTP
// surface and the outbound Scheduler Gateway client.
package tracing

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// CorrelationID identifies one request across the HTTP surface, the
// Workflow Manager, and any outbound Scheduler Gateway calls it triggers.
type CorrelationID string

type correlationKeyType struct{}

var correlationKey = correlationKeyType{}

const (
	// HeaderCorrelationID is the primary header for correlation ID.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is an alternative header accepted for compatibility.
	HeaderRequestID = "X-Request-ID"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// New generates a new correlation id.
func New() CorrelationID {
	return CorrelationID(uuid.New().String())
}

func (c CorrelationID) String() string { return string(c) }

// IsValid reports whether c is RFC 4122 UUID shaped.
func (c CorrelationID) IsValid() bool {
	return uuidRegex.MatchString(string(c))
}

// ToContext attaches a correlation id to ctx.
func ToContext(ctx context.Context, id CorrelationID) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// FromContext retrieves the correlation id, generating one if absent.
func FromContext(ctx context.Context) CorrelationID {
	if id, ok := ctx.Value(correlationKey).(CorrelationID); ok {
		return id
	}
	return New()
}

// FromContextOrEmpty retrieves the correlation id, returning "" if absent.
func FromContextOrEmpty(ctx context.Context) CorrelationID {
	if id, ok := ctx.Value(correlationKey).(CorrelationID); ok {
		return id
	}
	return ""
}

// ExtractFromRequest reads X-Correlation-ID, falling back to X-Request-ID.
func ExtractFromRequest(r *http.Request) (CorrelationID, bool) {
	if id := r.Header.Get(HeaderCorrelationID); id != "" {
		return CorrelationID(id), true
	}
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return CorrelationID(id), true
	}
	return "", false
}

// Middleware extracts or generates a correlation id for every request,
// stores it in the request context, and echoes it back on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id CorrelationID
		if extracted, ok := ExtractFromRequest(r); ok && extracted.IsValid() {
			id = extracted
		} else {
			id = New()
		}

		w.Header().Set(HeaderCorrelationID, id.String())
		next.ServeHTTP(w, r.WithContext(ToContext(r.Context(), id)))
	})
}
