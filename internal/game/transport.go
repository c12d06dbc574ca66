package game

// Mode is the synchronization path a match runs on.
type Mode string

const (
	ModeColyseus Mode = "colyseus" // authoritative real-time room
	ModeOnline   Mode = "online"   // document-polling fallback
	ModeNone     Mode = ""         // no active invite context
)

// Resolution is what the client UI consumes to pick a connection hook.
// FirestoreGameID is a passthrough of the invite match id whatever the mode.
type Resolution struct {
	Mode            Mode
	FirestoreGameID string
}

// ResolveTransport decides which path drives the match. Pure function of
// the registry and its inputs, so callers can evaluate it on every render
// without transport flapping. No match id means no invite context at all.
// Unknown game types fall back to polling rather than failing the match.
func ResolveTransport(gameTypeKey, matchID string) Resolution {
	if matchID == "" {
		return Resolution{Mode: ModeNone}
	}
	if c, ok := Lookup(gameTypeKey); ok && c.Realtime {
		return Resolution{Mode: ModeColyseus, FirestoreGameID: matchID}
	}
	return Resolution{Mode: ModeOnline, FirestoreGameID: matchID}
}
