package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Store/action layer.
	ErrBadRequest       = "E_BAD_REQUEST"
	ErrInvalidTerritory = "E_INVALID_TERRITORY"
	ErrInvalidFaction   = "E_INVALID_FACTION"
	ErrContention       = "E_CONTENTION"
	ErrInternal         = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrBadRequest:       {},
	ErrInvalidTerritory: {},
	ErrInvalidFaction:   {},
	ErrContention:       {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
