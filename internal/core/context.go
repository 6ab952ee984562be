package core

import "context"

type contextKey string

const (
	ctxKeyActor     contextKey = "audit_actor"
	ctxKeyIPAddress contextKey = "audit_ip"
	ctxKeyUserAgent contextKey = "audit_ua"
)

// Actor is the identity a write is attributed to.
type Actor struct {
	Email string `json:"email"`
}

// Identity resolves the current actor. An empty Email means anonymous.
type Identity interface {
	Current(ctx context.Context) Actor
}

// ContextIdentity reads the actor placed on the context by ContextWithActor.
type ContextIdentity struct{}

func (ContextIdentity) Current(ctx context.Context) Actor {
	return Actor{Email: GetActorFromContext(ctx)}
}

// ContextWithActor adds the acting user's email to context.
func ContextWithActor(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, ctxKeyActor, email)
}

// ContextWithIPAddress adds IP address to context for audit logging.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds User-Agent to context for audit logging.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// GetActorFromContext extracts the actor email from context.
func GetActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyActor).(string); ok {
		return v
	}
	return ""
}

// GetIPAddressFromContext extracts IP address from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts User-Agent from context.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}
