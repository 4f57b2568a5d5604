package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
)

// Headers carrying the caller's organization and user.
const (
	OrganizationHeader = "X-Organization-ID"
	UserHeader         = "X-User-ID"
)

type orgKey struct{}

// Organization reads the organization headers into the request context.
// Requests without an organization are rejected with 400.
func Organization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org := ledger.OrganizationContext{
			OrganizationID: strings.TrimSpace(r.Header.Get(OrganizationHeader)),
			UserID:         strings.TrimSpace(r.Header.Get(UserHeader)),
		}
		if !org.Valid() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"ORGANIZATION_REQUIRED","message":"` + OrganizationHeader + ` header is required"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOrganization(r.Context(), org)))
	})
}

// WithOrganization stores org in ctx
func WithOrganization(ctx context.Context, org ledger.OrganizationContext) context.Context {
	return context.WithValue(ctx, orgKey{}, org)
}

// OrganizationFrom returns the organization stored by Organization
func OrganizationFrom(ctx context.Context) ledger.OrganizationContext {
	org, _ := ctx.Value(orgKey{}).(ledger.OrganizationContext)
	return org
}
