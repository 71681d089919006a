// Package services composes the ledger engine with event publishing.
package services

import (
	"context"
	"log/slog"

	"kakeibo/internal/ledger"
)

// EventPublisher pushes transaction events to the message broker.
// *amqp.Client satisfies it; a nil publisher disables events.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, id int64, action string) error
}

// TransactionService runs ledger mutations and announces them. A failed
// publish is logged and swallowed: the ledger is the source of truth
// and consumers catch up from it.
type TransactionService struct {
	engine    *ledger.Engine
	publisher EventPublisher
}

func NewTransactionService(engine *ledger.Engine, publisher EventPublisher) *TransactionService {
	return &TransactionService{engine: engine, publisher: publisher}
}

func (s *TransactionService) Create(ctx context.Context, req ledger.CreateRequest) (ledger.CreateResult, error) {
	res, err := s.engine.Create(ctx, req)
	if err != nil {
		return ledger.CreateResult{}, err
	}
	s.publish(ctx, res.ID, "created")
	if res.PairID != 0 {
		s.publish(ctx, res.PairID, "created")
	}
	return res, nil
}

func (s *TransactionService) Update(ctx context.Context, id int64, req ledger.UpdateRequest) error {
	if err := s.engine.Update(ctx, id, req); err != nil {
		return err
	}
	s.publish(ctx, id, "updated")
	return nil
}

func (s *TransactionService) Delete(ctx context.Context, id int64) error {
	if err := s.engine.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, id, "deleted")
	return nil
}

func (s *TransactionService) CreateAdjustment(ctx context.Context, year, month int, categoryID, deltaCents int64, description string) (int64, error) {
	id, err := s.engine.CreateAdjustment(ctx, year, month, categoryID, deltaCents, description)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, id, "created")
	return id, nil
}

func (s *TransactionService) publish(ctx context.Context, id int64, action string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransactionEvent(ctx, id, action); err != nil {
		slog.WarnContext(ctx, "Failed to publish transaction event",
			"error", err, "id", id, "action", action)
	}
}
