package headers

// Request identification
const (
	// HeaderXRequestID identifies a single inbound call; the audit hooks copy it into the
	// correlation context when present.
	HeaderXRequestID = "x-request-id"

	// HeaderXAuditID is set on responses with the id the audit dispatcher generated
	// for the call, so clients can quote it when reporting problems.
	HeaderXAuditID = "x-audit-id"
)

// Correlation
const (
	// HeaderXCorrelationID correlates related requests across services.
	HeaderXCorrelationID = "x-correlation-id"

	// HeaderXCorrelationData carries the JSON encoded correlation map between services.
	HeaderXCorrelationData = "x-correlation-data"
)

// HeaderAuthorization carries the credentials the collector inspects for the principal.
// Format examples: "Bearer <token>", "Basic <base64-encoded-credentials>"
const HeaderAuthorization = "authorization"

// Forwarding headers consulted for the remote host when running behind a proxy.
const (
	HeaderXForwardedFor   = "x-forwarded-for"
	HeaderXForwardedHost  = "x-forwarded-host"
	HeaderXForwardedProto = "x-forwarded-proto"
)
