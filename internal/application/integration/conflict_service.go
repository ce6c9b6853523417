package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ResolutionChoice is an operator decision on a reviewable conflict
type ResolutionChoice string

const (
	ChoiceAcceptLocal    ResolutionChoice = "accept_local"
	ChoiceAcceptIncoming ResolutionChoice = "accept_incoming"
	ChoiceCustom         ResolutionChoice = "custom"
)

// IsValid returns true for known choices
func (c ResolutionChoice) IsValid() bool {
	return c == ChoiceAcceptLocal || c == ChoiceAcceptIncoming || c == ChoiceCustom
}

// ResolveConflictInput carries an operator decision. CustomValue is required for ChoiceCustom.
type ResolveConflictInput struct {
	Choice      ResolutionChoice
	CustomValue *integration.FieldValue
}

// ConflictService resolves incoming writes against stored entities and records the
// audit trail of every decision.
type ConflictService struct {
	resolver *integration.ConflictResolver
	txScope  TransactionScope
	syncLogs integration.SyncLogRepository
	metrics  *telemetry.SyncMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewConflictService creates a ConflictService
func NewConflictService(
	resolver *integration.ConflictResolver,
	txScope TransactionScope,
	syncLogs integration.SyncLogRepository,
	metrics *telemetry.SyncMetrics,
	log *zap.Logger,
) *ConflictService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConflictService{
		resolver: resolver,
		txScope:  txScope,
		syncLogs: syncLogs,
		metrics:  metrics,
		logger:   log.Named("conflicts"),
		now:      time.Now,
	}
}

// Apply resolves incoming values from origin against entity, writes the accepted values,
// persists the entity and appends the update and conflict records. It must run inside a
// transaction scope so the entity and its audit trail commit together.
func (s *ConflictService) Apply(
	ctx context.Context,
	repos TransactionalRepositories,
	entity integration.Syncable,
	incoming map[integration.Field]integration.FieldValue,
	origin integration.Origin,
	at time.Time,
) (*integration.Resolution, error) {
	res, err := s.resolver.Resolve(entity, incoming, origin, at)
	if err != nil {
		return nil, err
	}
	if err := integration.ApplyResolution(entity, res); err != nil {
		return nil, err
	}

	subject := subjectOf(entity)
	now := s.now().UTC()
	var entries []*integration.SyncLogEntry
	if res.HasChanges() {
		if err := saveEntity(ctx, repos, entity); err != nil {
			return nil, err
		}
		entries = append(entries, integration.NewSyncLogEntry(subject.clientID, subject.channelID, subject.entityType, subject.entityID,
			subject.externalID, integration.SyncActionUpdate, origin, res.Accepted, now))
		s.metrics.RecordWrite(ctx, string(subject.entityType), string(origin))
	}
	for _, c := range res.Conflicts {
		entries = append(entries, integration.NewConflictLogEntry(subject.clientID, subject.channelID, subject.entityType, subject.entityID,
			subject.externalID, c, now))
		s.metrics.RecordConflict(ctx, string(subject.entityType), string(c.Category), string(c.Outcome))
	}
	if len(entries) > 0 {
		if err := repos.SyncLogs().Save(ctx, entries...); err != nil {
			return nil, fmt.Errorf("save sync log: %w", err)
		}
	}

	if res.ManualReviewRequired {
		logger.Enrich(ctx, s.logger).Warn("Conflict requires manual review",
			zap.String("entity_type", string(subject.entityType)),
			zap.String("entity_id", subject.entityID.String()),
			zap.String("origin", string(origin)),
		)
	}
	return res, nil
}

// GetUnresolvedConflicts lists conflicts awaiting review, optionally for one client
func (s *ConflictService) GetUnresolvedConflicts(ctx context.Context, entityType integration.EntityType, clientID *uuid.UUID) ([]*integration.SyncLogEntry, error) {
	if !entityType.IsValid() {
		return nil, shared.NewDomainError("INVALID_ENTITY_TYPE", "entity type must be order or product")
	}
	return s.syncLogs.FindUnresolvedConflicts(ctx, entityType, clientID)
}

// ManuallyResolve applies an operator decision to a reviewable conflict. The chosen value
// is written with origin OPS, the conflict record is closed and a resolve_conflict record
// is appended. It returns the new record.
func (s *ConflictService) ManuallyResolve(ctx context.Context, logID uuid.UUID, entityType integration.EntityType, in ResolveConflictInput) (*integration.SyncLogEntry, error) {
	if !in.Choice.IsValid() {
		return nil, integration.ErrInvalidResolution
	}

	var resolved *integration.SyncLogEntry
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		entry, err := repos.SyncLogs().FindByID(ctx, logID)
		if err != nil {
			return err
		}
		if entry.EntityType != entityType || !entry.IsUnresolvedConflict() {
			return integration.ErrConflictNotReviewable
		}
		delta, ok := entry.ConflictDelta()
		if !ok {
			return integration.ErrConflictNotReviewable
		}

		chosen, err := chooseValue(entityType, delta, in)
		if err != nil {
			return err
		}

		entity, err := loadEntity(ctx, repos, entityType, entry.EntityID)
		if err != nil {
			return err
		}
		current, err := entity.GetField(delta.Field)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if err := entity.SetField(delta.Field, chosen); err != nil {
			return err
		}
		entity.RecordUpdate(delta.Field, integration.FieldUpdate{Origin: integration.OriginOps, At: now})
		if err := saveEntity(ctx, repos, entity); err != nil {
			return err
		}

		if err := entry.MarkResolved(now); err != nil {
			return err
		}
		if err := repos.SyncLogs().MarkResolved(ctx, entry); err != nil {
			return fmt.Errorf("mark conflict resolved: %w", err)
		}

		resolved = integration.NewSyncLogEntry(entry.ClientID, entry.ChannelID, entry.EntityType, entry.EntityID, entry.ExternalID,
			integration.SyncActionResolveConflict, integration.OriginOps,
			[]integration.FieldDelta{{Field: delta.Field, Before: current, After: chosen}}, now)
		return repos.SyncLogs().Save(ctx, resolved)
	})
	if err != nil {
		return nil, err
	}

	logger.Enrich(ctx, s.logger).Info("Conflict resolved by operator",
		zap.String("sync_log_id", logID.String()),
		zap.String("choice", string(in.Choice)),
	)
	return resolved, nil
}

func chooseValue(entityType integration.EntityType, delta integration.FieldDelta, in ResolveConflictInput) (integration.FieldValue, error) {
	switch in.Choice {
	case ChoiceAcceptLocal:
		return delta.Before, nil
	case ChoiceAcceptIncoming:
		return delta.After, nil
	}
	if in.CustomValue == nil {
		return integration.FieldValue{}, fmt.Errorf("%w: custom value required", integration.ErrInvalidResolution)
	}
	kind, ok := integration.KindOf(entityType, delta.Field)
	if !ok {
		return integration.FieldValue{}, integration.ErrUnknownField
	}
	if in.CustomValue.Kind != kind {
		return integration.FieldValue{}, integration.ErrFieldKindMismatch
	}
	return *in.CustomValue, nil
}

// auditSubject identifies the entity an audit record belongs to
type auditSubject struct {
	clientID   uuid.UUID
	channelID  uuid.UUID
	entityType integration.EntityType
	entityID   uuid.UUID
	externalID string
}

func subjectOf(entity integration.Syncable) auditSubject {
	switch e := entity.(type) {
	case *integration.Order:
		return auditSubject{e.ClientID, e.ChannelID, integration.EntityTypeOrder, e.ID, e.ExternalID}
	case *integration.Product:
		return auditSubject{e.ClientID, e.ChannelID, integration.EntityTypeProduct, e.ID, productExternalID(e)}
	}
	id, _ := uuid.Parse(entity.SyncEntityID())
	return auditSubject{entityType: entity.SyncEntityType(), entityID: id}
}

// productExternalID is the key echo detection uses for a product
func productExternalID(p *integration.Product) string {
	if p.ExternalID != "" {
		return p.ExternalID
	}
	return p.SKU
}

func saveEntity(ctx context.Context, repos TransactionalRepositories, entity integration.Syncable) error {
	switch e := entity.(type) {
	case *integration.Order:
		return repos.Orders().Save(ctx, e)
	case *integration.Product:
		return repos.Products().Save(ctx, e)
	}
	return fmt.Errorf("unsupported entity type %s", entity.SyncEntityType())
}

func loadEntity(ctx context.Context, repos TransactionalRepositories, entityType integration.EntityType, id uuid.UUID) (integration.Syncable, error) {
	switch entityType {
	case integration.EntityTypeOrder:
		return repos.Orders().FindByID(ctx, id)
	case integration.EntityTypeProduct:
		return repos.Products().FindByID(ctx, id)
	}
	return nil, fmt.Errorf("unsupported entity type %s", entityType)
}

// WithClock overrides the clock used for audit timestamps
func (s *ConflictService) WithClock(now func() time.Time) *ConflictService {
	s.now = now
	return s
}
