package auth

// Scopes understood by the API.
const (
	ScopeGeoTrack    = "geo:track"
	ScopeAlertsWrite = "alerts:write"
)
