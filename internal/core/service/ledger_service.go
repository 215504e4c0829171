package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/ledger"
	"github.com/rl1809/stockroom/internal/port"
)

const maxCommitAttempts = 3

var ErrCommitConflict = errors.New("item kept changing during commit")

// LedgerService applies movement intents against freshly read item state and
// hands low-stock events to a queue drained by notification workers.
type LedgerService struct {
	items     port.ItemRepository
	ledger    port.LedgerRepository
	movements port.MovementRepository
	cache     port.CacheRepository
	feed      port.ChangeFeed
	alerts    chan domain.LowStockEvent
	logger    *zap.Logger
	now       func() time.Time
}

func NewLedgerService(
	items port.ItemRepository,
	ledgerRepo port.LedgerRepository,
	movements port.MovementRepository,
	cache port.CacheRepository,
	feed port.ChangeFeed,
	logger *zap.Logger,
	queueSize int,
) *LedgerService {
	return &LedgerService{
		items:     items,
		ledger:    ledgerRepo,
		movements: movements,
		cache:     cache,
		feed:      feed,
		alerts:    make(chan domain.LowStockEvent, queueSize),
		logger:    logger,
		now:       time.Now,
	}
}

// Apply validates intent, deduplicates it when it carries an idempotency key,
// and commits the resulting item state and movement.
func (s *LedgerService) Apply(ctx context.Context, intent domain.Intent) (*ledger.Result, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	if intent.IdempotencyKey != "" {
		ok, err := s.cache.SetIdempotency(ctx, intent.IdempotencyKey)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "idempotency check", Err: err}
		}
		if !ok {
			return nil, domain.ErrDuplicateDelivery
		}
	}

	res, err := s.commit(ctx, intent)
	if err != nil {
		if intent.IdempotencyKey != "" {
			if relErr := s.cache.ReleaseIdempotency(ctx, intent.IdempotencyKey); relErr != nil {
				s.logger.Error("failed to release idempotency key",
					zap.String("key", intent.IdempotencyKey),
					zap.Error(relErr),
				)
			}
		}
		return nil, err
	}

	s.logger.Info("movement applied",
		zap.String("movement_id", res.Movement.ID),
		zap.String("type", string(res.Movement.Type)),
		zap.String("sku", res.Movement.SKU),
		zap.Int("quantity_before", res.Movement.QuantityBefore),
		zap.Int("quantity_after", res.Movement.QuantityAfter),
		zap.String("user_id", res.Movement.UserID),
	)

	s.publish(ctx, domain.CollectionInventory, res.Item.ID)
	s.publish(ctx, domain.CollectionMovements, res.Movement.ID)

	if res.Signal != nil {
		s.RaiseAlert(ctx, *res.Signal)
	}
	return res, nil
}

func (s *LedgerService) commit(ctx context.Context, intent domain.Intent) (*ledger.Result, error) {
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		item, err := s.items.GetItemBySKU(ctx, intent.SKU)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "get item", Err: err}
		}

		res, err := ledger.Apply(item, intent, s.now())
		if err != nil {
			return nil, err
		}

		err = s.ledger.CommitMovement(ctx, &res.Item, &res.Movement)
		if err == nil {
			if res.Signal != nil {
				res.Signal.ItemID = res.Item.ID
			}
			return res, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, &domain.PersistenceError{Op: "commit movement", Err: err}
		}

		s.logger.Debug("item changed concurrently, retrying",
			zap.String("sku", intent.SKU),
			zap.Int("attempt", attempt),
		)
	}
	return nil, &domain.PersistenceError{Op: "commit movement", Err: ErrCommitConflict}
}

// ApplyBatch applies intents one after another. A failing intent is recorded
// in the report and never stops the ones after it.
func (s *LedgerService) ApplyBatch(ctx context.Context, intents []domain.Intent) domain.BatchReport {
	var report domain.BatchReport
	for i, intent := range intents {
		outcome := domain.ItemOutcome{Index: i, SKU: intent.SKU}
		res, err := s.Apply(ctx, intent)
		if err != nil {
			outcome.Err = err
			s.logger.Warn("movement not applied",
				zap.Int("index", i),
				zap.String("sku", intent.SKU),
				zap.String("type", string(intent.Type)),
				zap.Error(err),
			)
		} else {
			mv := res.Movement
			outcome.Movement = &mv
		}
		report.Add(outcome)
	}
	return report
}

func (s *LedgerService) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, error) {
	return s.movements.ListMovements(ctx, filter)
}

// UpdateMovementStatus settles a pending movement. Quantities are never
// touched by this path.
func (s *LedgerService) UpdateMovementStatus(ctx context.Context, id string, status domain.MovementStatus, notes *string) (*domain.Movement, error) {
	if status != domain.MovementStatusCompleted && status != domain.MovementStatusCancelled {
		return nil, &domain.ValidationError{Field: "status", Message: "pending movements can only be completed or cancelled"}
	}

	mv, err := s.movements.GetMovement(ctx, id)
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return nil, domain.ErrMovementNotFound
	}
	if mv.Status != domain.MovementStatusPending {
		return nil, domain.ErrInvalidTransition
	}

	if err := s.movements.UpdateMovementStatus(ctx, id, domain.MovementStatusPending, status, notes); err != nil {
		return nil, err
	}

	mv.Status = status
	if notes != nil {
		mv.Notes = *notes
	}
	s.publish(ctx, domain.CollectionMovements, id)
	return mv, nil
}

// RaiseAlert queues a low-stock event for the notification workers.
func (s *LedgerService) RaiseAlert(ctx context.Context, event domain.LowStockEvent) {
	s.logger.Warn("low stock",
		zap.String("sku", event.SKU),
		zap.String("name", event.Name),
		zap.Int("quantity", event.CurrentQuantity),
		zap.Int("minimum_stock", event.MinimumStock),
	)

	select {
	case s.alerts <- event:
	case <-ctx.Done():
		s.logger.Error("low-stock alert dropped", zap.String("sku", event.SKU), zap.Error(ctx.Err()))
	}
}

func (s *LedgerService) GetAlertQueue() <-chan domain.LowStockEvent {
	return s.alerts
}

func (s *LedgerService) Close() {
	close(s.alerts)
}

func (s *LedgerService) publish(ctx context.Context, collection, id string) {
	publishChange(ctx, s.feed, s.logger, collection, id, s.now())
}

func publishChange(ctx context.Context, feed port.ChangeFeed, logger *zap.Logger, collection, id string, at time.Time) {
	if feed == nil {
		return
	}
	if err := feed.Publish(ctx, domain.Change{Collection: collection, ID: id, At: at}); err != nil {
		logger.Warn("failed to publish change",
			zap.String("collection", collection),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}
