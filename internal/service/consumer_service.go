package service

import (
	"context"
	"encoding/json"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/dto"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/mapper"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/logger"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/mailer"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/unitofwork"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/events"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"

	"github.com/ThreeDotsLabs/watermill/message"
)

const consumerModule = "Consumer"

// EventPublisher forwards domain events to the cluster bus.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type ConsumerOptions struct {
	RetentionCap    int
	SupervisorEmail string
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	uowFactory unitofwork.RepositoryFactory
	events     EventPublisher
	mailer     mailer.IEmailService
	opts       ConsumerOptions
	mapper     *mapper.KySessionMapper
	logger     logger.ILogger
}

// NewConsumerService persists completed sessions. events and mail may be nil.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	eventPub EventPublisher,
	mail mailer.IEmailService,
	opts ConsumerOptions,
	log logger.ILogger,
) IConsumerService {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.RetentionCap <= 0 {
		opts.RetentionCap = 100
	}
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		uowFactory: uowFactory,
		events:     eventPub,
		mailer:     mail,
		opts:       opts,
		mapper:     mapper.NewKySessionMapper(),
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishKyCompletedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error(consumerModule, "Failed to unmarshal completion message", map[string]interface{}{"error": err.Error()})
		msg.Ack()
		return
	}

	snap := payload.Snapshot
	if snap.Session.ID == "" || snap.Status != store.StatusCompleted {
		cs.logger.Warn(consumerModule, "Ignoring snapshot that is not a completed session", map[string]interface{}{
			"session_id": snap.Session.ID,
			"status":     string(snap.Status),
		})
		msg.Ack()
		return
	}

	fields := map[string]interface{}{"session_id": snap.Session.ID}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		cs.logger.Error(consumerModule, "Failed to begin transaction", withError(fields, err))
		msg.Nack()
		return
	}
	defer uow.Rollback()

	repo := uow.KySessionRepository()
	if err := repo.Create(ctx, cs.mapper.FromConversation(snap)); err != nil {
		cs.logger.Error(consumerModule, "Failed to store completed session", withError(fields, err))
		msg.Nack()
		return
	}
	pruned, err := repo.PruneOldest(ctx, cs.opts.RetentionCap)
	if err != nil {
		cs.logger.Error(consumerModule, "Failed to enforce retention", withError(fields, err))
		msg.Nack()
		return
	}
	if err := uow.Commit(); err != nil {
		cs.logger.Error(consumerModule, "Failed to commit transaction", withError(fields, err))
		msg.Nack()
		return
	}

	cs.logger.Info(consumerModule, "Completed session stored", map[string]interface{}{
		"session_id": snap.Session.ID,
		"work_items": len(snap.Session.WorkItems),
		"pruned":     pruned,
	})

	if cs.events != nil {
		if err := cs.events.Publish(ctx, events.NewKySessionCompleted(snap.Session)); err != nil {
			cs.logger.Warn(consumerModule, "Failed to publish completion event", withError(fields, err))
		}
	}
	if cs.mailer != nil && cs.opts.SupervisorEmail != "" {
		if err := cs.mailer.SendKySummary(cs.opts.SupervisorEmail, snap.Session); err != nil {
			cs.logger.Warn(consumerModule, "Failed to mail supervisor summary", withError(fields, err))
		}
	}

	msg.Ack()
}

func withError(fields map[string]interface{}, err error) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}
