package constants

import "time"

// Network defaults
const (
	DefaultHost       = "0.0.0.0"
	DefaultPort       = "8080"
	DefaultServerURL  = "http://localhost:8080"
	ReadHeaderTimeout = 10 * time.Second
	IdleTimeout       = 120 * time.Second
	ShutdownTimeout   = 10 * time.Second
	RequestTimeout    = 30 * time.Second
)

// StandardWebPorts are omitted when building public URLs.
var StandardWebPorts = map[string]bool{
	"80":  true,
	"443": true,
}

// Session settings
const (
	DefaultSessionTimeout  = 5 * time.Minute
	DefaultLivenessTimeout = 15 * time.Second
	DefaultSweepInterval   = 30 * time.Second
	DefaultPollInterval    = 2 * time.Second
)

// Upload limits
const (
	DefaultMaxUploadSize = 10 << 20 // 10 MiB
	DefaultMinFreeDisk   = 64 << 20
	MultipartOverhead    = 64 << 10
	UploadFormField      = "image"
)

// Rate limiting
const (
	DefaultCreateRateLimit = 30
	RateLimitWindow        = time.Minute
	UnlimitedRateLimit     = 0
	MaxUploadsPerIP        = 4
	RedisKeyPrefix         = "qrelay:ratelimit:"
	MaxProbeMisses         = 20
	ProbeBlockDuration     = 5 * time.Minute
)

// API endpoints
const (
	EndpointSessions = "/api/sessions"
	EndpointHealth   = "/healthz"
	EndpointMetrics  = "/metrics"
	PathJoin         = "/join/"
)

// Query values
const (
	QueryRole = "role"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorRed    = "\033[31m"
)

// Messages
const (
	MsgInvalidRole       = "role must be receiver or sender"
	MsgInvalidSessionID  = "invalid session id"
	MsgSessionNotFound   = "Session not found or expired"
	MsgImageNotFound     = "Image not found"
	MsgSenderConnected   = "A sender is already connected"
	MsgNotConnected      = "Session is not ready for uploads"
	MsgReceiverGone      = "Receiver disconnected; session closed"
	MsgPayloadTooLarge   = "Image exceeds the upload limit"
	MsgStorageFailure    = "Could not store image"
	MsgBadUpload         = "Upload body could not be read"
	MsgMissingImage      = "multipart field \"image\" is required"
	MsgRateLimitExceeded = "Rate limit exceeded"
	MsgTooManyUploads    = "Too many concurrent uploads"
	MsgInternalError     = "Internal server error"
)
