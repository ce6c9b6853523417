package integration

import (
	"sort"
	"time"
)

// DefaultConflictWindow is how long after a write a different-origin write counts as concurrent
const DefaultConflictWindow = 5 * time.Minute

// ConflictOutcome is the decision taken for one conflicting field
type ConflictOutcome string

const (
	// OutcomeIncomingWins applies the incoming value
	OutcomeIncomingWins ConflictOutcome = "incoming_wins"
	// OutcomeLocalWins keeps the existing value
	OutcomeLocalWins ConflictOutcome = "local_wins"
	// OutcomeRejected keeps the existing value because the origin may not write the field
	OutcomeRejected ConflictOutcome = "rejected"
	// OutcomeManual keeps the existing value provisionally and asks an operator
	OutcomeManual ConflictOutcome = "manual"
)

// KeepsLocal returns true if the existing value survives
func (o ConflictOutcome) KeepsLocal() bool {
	return o != OutcomeIncomingWins
}

// TiePolicy decides shared-field conflicts with identical timestamps
type TiePolicy string

const (
	TiePolicyManual         TiePolicy = "manual"
	TiePolicyKeepLocal      TiePolicy = "keep_local"
	TiePolicyAcceptIncoming TiePolicy = "accept_incoming"
)

// FieldConflict describes a disagreement between the stored and an incoming value
type FieldConflict struct {
	Field          Field
	Category       FieldCategory
	Local          FieldValue
	Incoming       FieldValue
	LocalOrigin    Origin
	LocalAt        time.Time
	IncomingOrigin Origin
	IncomingAt     time.Time
	Outcome        ConflictOutcome
}

// Resolution is the result of resolving an incoming change set
type Resolution struct {
	Origin     Origin
	IncomingAt time.Time

	// Accepted holds the fields whose incoming value differs and wins
	Accepted []FieldDelta
	// Unchanged holds fields whose incoming value equals the stored one
	Unchanged []Field
	// Conflicts holds every in-window disagreement, whatever the outcome
	Conflicts []FieldConflict

	ManualReviewRequired bool
}

// HasChanges returns true if at least one field will be written
func (r *Resolution) HasChanges() bool {
	return len(r.Accepted) > 0
}

// ResolverOption configures a ConflictResolver
type ResolverOption func(*ConflictResolver)

// WithConflictWindow overrides the conflict window
func WithConflictWindow(d time.Duration) ResolverOption {
	return func(r *ConflictResolver) {
		if d > 0 {
			r.window = d
		}
	}
}

// WithTiePolicy overrides the shared-field tie policy
func WithTiePolicy(p TiePolicy) ResolverOption {
	return func(r *ConflictResolver) {
		r.tiePolicy = p
	}
}

// WithResolverClock injects the clock used to evaluate the conflict window
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *ConflictResolver) {
		r.now = now
	}
}

// ConflictResolver applies the fixed field ownership rules. It holds no state besides
// configuration and is safe for concurrent use.
type ConflictResolver struct {
	window    time.Duration
	tiePolicy TiePolicy
	now       func() time.Time
}

// NewConflictResolver creates a resolver with the default window and manual tie policy
func NewConflictResolver(opts ...ResolverOption) *ConflictResolver {
	r := &ConflictResolver{
		window:    DefaultConflictWindow,
		tiePolicy: TiePolicyManual,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Window returns the configured conflict window
func (r *ConflictResolver) Window() time.Duration {
	return r.window
}

// Resolve decides, field by field, whether incoming values from origin at incomingAt
// replace the stored values of entity. It does not modify the entity.
func (r *ConflictResolver) Resolve(entity Syncable, incoming map[Field]FieldValue, origin Origin, incomingAt time.Time) (*Resolution, error) {
	res := &Resolution{Origin: origin, IncomingAt: incomingAt}
	now := r.now()

	fields := make([]Field, 0, len(incoming))
	for f := range incoming {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	for _, f := range fields {
		value := incoming[f]
		category, ok := entity.FieldCategory(f)
		if !ok {
			return nil, ErrUnknownField
		}
		current, err := entity.GetField(f)
		if err != nil {
			return nil, err
		}
		if current.Kind != value.Kind {
			return nil, ErrFieldKindMismatch
		}

		if current.Equal(value) {
			res.Unchanged = append(res.Unchanged, f)
			continue
		}

		delta := FieldDelta{Field: f, Before: current, After: value}
		last, ok := entity.LastUpdate(f)
		if !ok || now.Sub(last.At) > r.window {
			res.Accepted = append(res.Accepted, delta)
			continue
		}

		outcome, conflict := r.decide(category, last, origin, incomingAt)
		if conflict {
			res.Conflicts = append(res.Conflicts, FieldConflict{
				Field:          f,
				Category:       category,
				Local:          current,
				Incoming:       value,
				LocalOrigin:    last.Origin,
				LocalAt:        last.At,
				IncomingOrigin: origin,
				IncomingAt:     incomingAt,
				Outcome:        outcome,
			})
		}
		if outcome == OutcomeManual {
			res.ManualReviewRequired = true
		}
		if outcome == OutcomeIncomingWins {
			res.Accepted = append(res.Accepted, delta)
		}
	}
	return res, nil
}

// decide applies the category rule for a write inside the conflict window. The second
// return value is false for an in-order write by the same origin, which is not a conflict.
func (r *ConflictResolver) decide(category FieldCategory, last FieldUpdate, origin Origin, at time.Time) (ConflictOutcome, bool) {
	if category == CategoryStock && !origin.IsStockAuthority() {
		return OutcomeRejected, true
	}

	if last.Origin == origin {
		if at.Before(last.At) {
			return OutcomeLocalWins, true
		}
		return OutcomeIncomingWins, false
	}

	switch category {
	case CategoryCommerce:
		switch {
		case origin.IsStorefront() && !last.Origin.IsStorefront():
			return OutcomeIncomingWins, true
		case !origin.IsStorefront() && last.Origin.IsStorefront():
			return OutcomeLocalWins, true
		}
		return laterWins(last.At, at), true

	case CategoryOps:
		switch {
		case origin == OriginOps:
			return OutcomeIncomingWins, true
		case last.Origin == OriginOps:
			return OutcomeLocalWins, true
		}
		return laterWins(last.At, at), true

	case CategoryStock:
		if !last.Origin.IsStockAuthority() {
			return OutcomeIncomingWins, true
		}
		return laterWins(last.At, at), true

	case CategoryShared:
		switch {
		case at.After(last.At):
			return OutcomeIncomingWins, true
		case at.Before(last.At):
			return OutcomeLocalWins, true
		}
		switch r.tiePolicy {
		case TiePolicyAcceptIncoming:
			return OutcomeIncomingWins, true
		case TiePolicyKeepLocal:
			return OutcomeLocalWins, true
		}
		return OutcomeManual, true
	}
	return OutcomeLocalWins, true
}

// laterWins prefers the strictly later timestamp; ties keep the stored value
func laterWins(localAt, incomingAt time.Time) ConflictOutcome {
	if incomingAt.After(localAt) {
		return OutcomeIncomingWins
	}
	return OutcomeLocalWins
}

// ApplyResolution writes the accepted values and records the writer of every touched field
func ApplyResolution(entity Syncable, res *Resolution) error {
	stamp := FieldUpdate{Origin: res.Origin, At: res.IncomingAt}
	for _, d := range res.Accepted {
		if err := entity.SetField(d.Field, d.After); err != nil {
			return err
		}
		entity.RecordUpdate(d.Field, stamp)
	}
	return nil
}
