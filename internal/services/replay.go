package services

import (
	"context"
	"fmt"

	"campusattend/internal/domain"
	"campusattend/internal/resilience"
)

// PendingReplayer applies queued offline mutations to the backing store.
type PendingReplayer struct {
	repo    domain.EventRepository
	retrier *resilience.Retrier
}

// NewPendingReplayer returns a replayer that routes every mutation through retrier.
func NewPendingReplayer(repo domain.EventRepository, retrier *resilience.Retrier) *PendingReplayer {
	return &PendingReplayer{repo: repo, retrier: retrier}
}

// Replay applies op. All operation types are set mutations, so replaying an
// operation that already landed is harmless.
func (p *PendingReplayer) Replay(ctx context.Context, op *domain.PendingOperation) error {
	opCtx := resilience.OperationContext{
		Operation: "replay." + string(op.Type),
		UserID:    op.Payload.UserID,
		EventID:   op.Payload.EventID,
		Metadata:  map[string]any{"pending_id": op.ID},
	}
	var mutate func(ctx context.Context) error
	switch op.Type {
	case domain.OpAddRSVP:
		mutate = func(ctx context.Context) error {
			return p.repo.AddToSet(ctx, op.Payload.EventID, domain.FieldRSVPs, op.Payload.UserID)
		}
	case domain.OpRemoveRSVP:
		mutate = func(ctx context.Context) error {
			return p.repo.RemoveFromSet(ctx, op.Payload.EventID, domain.FieldRSVPs, op.Payload.UserID)
		}
	case domain.OpCheckIn:
		mutate = func(ctx context.Context) error {
			return p.repo.AddToSet(ctx, op.Payload.EventID, domain.FieldCheckedIn, op.Payload.UserID)
		}
	default:
		return resilience.Classify(fmt.Errorf("unknown pending operation %q: %w", op.Type, domain.ErrInvalidInput))
	}
	return p.retrier.Run(ctx, opCtx, mutate)
}
