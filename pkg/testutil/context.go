package testutil

import (
	"net/http"

	"lendaudit/pkg/requestcontext"
)

// WithUser adds an authenticated user to the request context, as the auth
// middleware would for a valid bearer token.
func WithUser(req *http.Request, userID, email string) *http.Request {
	return req.WithContext(requestcontext.WithUser(req.Context(), userID, email))
}

// WithClient sets the client IP and User-Agent the metadata middleware would extract.
func WithClient(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}

// WithRequestID sets the request id the request middleware would assign.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
