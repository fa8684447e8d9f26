package session

// State is the coordinator's position in the session lifecycle.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	Refreshing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// TokenPair is the access/refresh credential pair. Presence of both is the
// sole definition of "authenticated" for request purposes.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Valid reports whether both tokens are present.
func (p TokenPair) Valid() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}
