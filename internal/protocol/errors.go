package protocol

const (
	// Handshake and framing.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Intents.
	ErrBadRequest      = "E_BAD_REQUEST"
	ErrRateLimit       = "E_RATE_LIMIT"
	ErrUnknownPart     = "E_UNKNOWN_PART"
	ErrUnknownMaterial = "E_UNKNOWN_MATERIAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadRequest:      {},
	ErrRateLimit:       {},
	ErrUnknownPart:     {},
	ErrUnknownMaterial: {},
}

// IsKnownCode reports whether code may appear in an ERROR message. The empty
// code is allowed for informational errors.
func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
