package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/JonMunkholm/credstore/internal/core"
	"github.com/JonMunkholm/credstore/internal/logging"
)

// ActorHeader carries the email of the user acting through the API.
const ActorHeader = "X-User-Email"

type holderKey struct{}

// attrHolder lets inner middleware hand log attributes back to Logger.
type attrHolder struct {
	attrs []any
}

func withAttrHolder(ctx context.Context, h *attrHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

// RequestMetadata puts the acting user, client IP and User-Agent on the
// request context for identity, audit events and logging.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ctx = core.ContextWithIPAddress(ctx, clientIP(r))
		ctx = core.ContextWithUserAgent(ctx, r.UserAgent())

		if actor := strings.ToLower(strings.TrimSpace(r.Header.Get(ActorHeader))); actor != "" {
			ctx = core.ContextWithActor(ctx, actor)
			ctx = logging.WithAttrs(ctx, "actor", actor)
			if h, ok := ctx.Value(holderKey{}).(*attrHolder); ok {
				h.attrs = append(h.attrs, "actor", actor)
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP returns the host part of RemoteAddr, already resolved by TrustedRealIP.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
