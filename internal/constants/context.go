package constants

// ContextKey is the typed key used for values stored in a context.Context.
// A dedicated type avoids collisions with keys set by other packages.
type ContextKey string

const (
	CtxKeyRequestID ContextKey = "request_id"
	CtxKeyUserID    ContextKey = "user_id"
	CtxKeyClientIP  ContextKey = "client_ip"
	CtxKeyUserAgent ContextKey = "user_agent"
	CtxKeyStartTime ContextKey = "start_time"
	CtxKeyModule    ContextKey = "module"
	CtxKeyFunction  ContextKey = "function"
)

// GinKeyIdentity is the gin context key under which the access guard stores
// the resolved SessionIdentity for the current request.
const GinKeyIdentity = "auth_identity"
