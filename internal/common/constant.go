package common

// SessionCookieName is the HTTP cookie carrying the caller's session id.
const SessionCookieName = "postfacto_session"

// SessionIDMetadataKey and JoinTokenMetadataKey are the gRPC metadata keys
// used to authenticate feed subscriptions to private retros.
const (
	SessionIDMetadataKey = "session_id"
	JoinTokenMetadataKey = "join_token"
)

// EnvProduction is the environment name that suppresses error detail in
// client responses.
const EnvProduction = "production"
