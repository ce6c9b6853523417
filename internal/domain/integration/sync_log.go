package integration

import (
	"time"

	"github.com/google/uuid"
)

// SyncAction classifies an audit record
type SyncAction string

const (
	SyncActionCreate          SyncAction = "create"
	SyncActionUpdate          SyncAction = "update"
	SyncActionConflict        SyncAction = "conflict"
	SyncActionResolveConflict SyncAction = "resolve_conflict"
	SyncActionCancel          SyncAction = "cancel"
	SyncActionSplit           SyncAction = "split"
	SyncActionHold            SyncAction = "hold"
	SyncActionRelease         SyncAction = "release"
	SyncActionPropagate       SyncAction = "propagate"
	SyncActionLink            SyncAction = "link"
)

// SyncLogEntry is an immutable audit record of a resolved write.
// The only permitted mutation is MarkResolved on an unresolved conflict.
type SyncLogEntry struct {
	ID             uuid.UUID
	ClientID       uuid.UUID
	ChannelID      uuid.UUID
	EntityType     EntityType
	EntityID       uuid.UUID
	ExternalID     string
	Action         SyncAction
	Origin         Origin
	TargetPlatform Origin
	Changes        []FieldDelta
	Success        bool
	ErrorMessage   string

	// Conflict details; empty for plain writes
	Outcome        ConflictOutcome
	LocalOrigin    Origin
	RequiresReview bool
	ResolvedAt     *time.Time

	CreatedAt time.Time
}

// NewSyncLogEntry creates a successful audit record
func NewSyncLogEntry(clientID, channelID uuid.UUID, entityType EntityType, entityID uuid.UUID, externalID string, action SyncAction, origin Origin, changes []FieldDelta, now time.Time) *SyncLogEntry {
	return &SyncLogEntry{
		ID:         uuid.New(),
		ClientID:   clientID,
		ChannelID:  channelID,
		EntityType: entityType,
		EntityID:   entityID,
		ExternalID: externalID,
		Action:     action,
		Origin:     origin,
		Changes:    changes,
		Success:    true,
		CreatedAt:  now,
	}
}

// NewConflictLogEntry records one field conflict. Manual outcomes are flagged for review
// and stay unsuccessful until an operator resolves them.
func NewConflictLogEntry(clientID, channelID uuid.UUID, entityType EntityType, entityID uuid.UUID, externalID string, c FieldConflict, now time.Time) *SyncLogEntry {
	entry := NewSyncLogEntry(clientID, channelID, entityType, entityID, externalID, SyncActionConflict, c.IncomingOrigin,
		[]FieldDelta{{Field: c.Field, Before: c.Local, After: c.Incoming}}, now)
	entry.Outcome = c.Outcome
	entry.LocalOrigin = c.LocalOrigin
	if c.Outcome == OutcomeManual {
		entry.Success = false
		entry.RequiresReview = true
		entry.ErrorMessage = "timestamp tie on shared field requires manual review"
	}
	return entry
}

// WithTarget sets the platform a propagation record is aimed at
func (e *SyncLogEntry) WithTarget(target Origin) *SyncLogEntry {
	e.TargetPlatform = target
	return e
}

// WithError marks the record as failed
func (e *SyncLogEntry) WithError(msg string) *SyncLogEntry {
	e.Success = false
	e.ErrorMessage = msg
	return e
}

// ChangedFields lists the fields touched by the record
func (e *SyncLogEntry) ChangedFields() []Field {
	fields := make([]Field, 0, len(e.Changes))
	for _, c := range e.Changes {
		fields = append(fields, c.Field)
	}
	return fields
}

// IsUnresolvedConflict returns true for conflicts waiting for an operator
func (e *SyncLogEntry) IsUnresolvedConflict() bool {
	return e.Action == SyncActionConflict && e.RequiresReview && e.ResolvedAt == nil
}

// ConflictDelta returns the single field delta of a conflict record
func (e *SyncLogEntry) ConflictDelta() (FieldDelta, bool) {
	if e.Action != SyncActionConflict || len(e.Changes) != 1 {
		return FieldDelta{}, false
	}
	return e.Changes[0], true
}

// MarkResolved closes a reviewable conflict
func (e *SyncLogEntry) MarkResolved(now time.Time) error {
	if !e.IsUnresolvedConflict() {
		return ErrConflictNotReviewable
	}
	e.Success = true
	e.ResolvedAt = &now
	return nil
}
