package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/parchment-ai/corpusd/internal/api"
)

type contextKey string

const (
	TenantIDKey contextKey = "tenant_id"
	AgentIDKey  contextKey = "agent_id"
)

// TenantScope requires the X-Tenant-ID and X-Agent-ID headers on every
// request and injects both into the request context. Every operation in the
// system is scoped to exactly one tenant and agent; a request without either
// header has no valid scope.
func TenantScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
		if tenantID == "" {
			api.Error(w, http.StatusBadRequest, "missing X-Tenant-ID header")
			return
		}

		agentID := strings.TrimSpace(r.Header.Get("X-Agent-ID"))
		if agentID == "" {
			api.Error(w, http.StatusBadRequest, "missing X-Agent-ID header")
			return
		}

		ctx := context.WithValue(r.Context(), TenantIDKey, tenantID)
		ctx = context.WithValue(ctx, AgentIDKey, agentID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTenantID returns the tenant ID from context.
func GetTenantID(ctx context.Context) string {
	tenantID, _ := ctx.Value(TenantIDKey).(string)
	return tenantID
}

// GetAgentID returns the agent ID from context.
func GetAgentID(ctx context.Context) string {
	agentID, _ := ctx.Value(AgentIDKey).(string)
	return agentID
}
