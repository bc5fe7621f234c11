package session

import (
	claims "claimguard/internal/claims/models"
	"claimguard/internal/session/models"
	"claimguard/internal/store"
)

// Claim identifiers are sequenced per session, so stored claims and results
// are keyed by session as well.
func scopedID(sessionID models.SessionID, claimID claims.ClaimID) string {
	return string(sessionID) + "/" + string(claimID)
}

type claimEntity struct {
	SessionID models.SessionID `json:"session_id"`
	*claims.Claim
}

func (e claimEntity) EntityKind() store.Kind { return store.KindClaim }
func (e claimEntity) EntityID() string       { return scopedID(e.SessionID, e.ID) }

// resultEntity is keyed by claim so the store's write-once rule also
// enforces one result per claim.
type resultEntity struct {
	SessionID models.SessionID `json:"session_id"`
	*claims.ValidationResult
}

func (e resultEntity) EntityKind() store.Kind { return store.KindResult }
func (e resultEntity) EntityID() string       { return scopedID(e.SessionID, e.ClaimID) }

type sessionEntity struct {
	models.DemonstrationSession
}

func (e sessionEntity) EntityKind() store.Kind { return store.KindSession }
func (e sessionEntity) EntityID() string       { return string(e.ID) }
