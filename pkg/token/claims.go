// Package token implements the token service: issuing, validating,
// rotating, and revoking bearer tokens, plus parent-to-child specialist
// delegation, grounded on the session-JWT idiom of this repository's HMAC
// signer but extended with the hub's richer claim set.
package token

import (
	"time"

	"github.com/google/uuid"
)

// parseUUID parses s as a UUID, used where a claim's Subject needs to be
// resolved back to a typed user id for event-store writes.
func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// Allow-listed specialist names a parent token may delegate to.
const (
	SpecialistAube    = "luna-aube"
	SpecialistCV      = "luna-cv"
	SpecialistLetters = "luna-letters"
	SpecialistRise    = "luna-rise"
)

// LunaContext carries the narrative/energy snapshot embedded in every
// parent access token.
type LunaContext struct {
	CurrentModule         string   `json:"current_module"`
	SpecialistPermissions []string `json:"specialist_permissions"`
	NarrativeChapter      string   `json:"narrative_chapter"`
	JourneyStep           string   `json:"journey_step"`
	ConversationCount     int      `json:"conversation_count"`
}

// DelegationContext describes why a child token was issued.
type DelegationContext struct {
	TargetModule string `json:"target_module"`
	Reason       string `json:"reason"`
}

// Claims is the custom claim set embedded in every access token. Parent
// tokens leave SpecialistName empty; child (specialist) tokens populate the
// delegation fields and ParentJTI.
type Claims struct {
	Subject           string      `json:"sub"`
	SessionID         string      `json:"session_id"`
	LunaContext       LunaContext `json:"luna_context"`
	MicroserviceScope []string    `json:"microservice_scope"`

	// Child-only fields: a delegated specialist token additionally carries these.
	SpecialistName        string             `json:"specialist_name,omitempty"`
	SpecialistPermissions []string           `json:"specialist_permissions,omitempty"`
	DelegationContext     *DelegationContext `json:"delegation_context,omitempty"`
	ParentJTI             string             `json:"parent_jti,omitempty"`
}

// IsChild reports whether these claims belong to a delegated specialist
// token rather than a parent session token.
func (c Claims) IsChild() bool {
	return c.SpecialistName != ""
}

// IssuedToken is the result of issuing an access token: the serialized JWT
// plus its registered claims, for callers that need jti/exp without
// re-parsing.
type IssuedToken struct {
	Raw       string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
