package middlewares

// gin context keys
const (
	CtxRequestID = "request_id"
	CtxUserID    = "auth.userID"
	CtxEmail     = "auth.email"
	CtxClaims    = "auth.claims"
	CtxUser      = "auth.user"
	CtxToken     = "auth.token"
)
