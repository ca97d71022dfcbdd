// Package actorctx carries request-scoped identity through context.Context so
// code below the HTTP layer never needs a *gin.Context.
package actorctx

import "context"

type ctxKey string

const (
	keyPrincipal ctxKey = "principal"
	keyRequestID ctxKey = "request_id"
)

// Principal is the authenticated caller resolved by the auth gate.
type Principal struct {
	UserID string
	Email  string
	Token  string
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, keyPrincipal, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(keyPrincipal).(Principal)

	return p, ok && p.UserID != ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

func RequestIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)

	return v, ok && v != ""
}
