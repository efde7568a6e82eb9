package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/credential-service/internal/events"
)

// AuditService writes every domain event to the structured log.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     loggerOrNop(logger).Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventCredentialIssued, a.handleCredentialIssued)
	a.dispatcher.Subscribe(events.EventCredentialRevoked, a.handleCredentialRevoked)
	a.dispatcher.Subscribe(events.EventCheckInAccepted, a.handleCheckIn)
	a.dispatcher.Subscribe(events.EventCheckInDenied, a.handleCheckIn)
}

func (a *AuditService) handleCredentialIssued(_ context.Context, event events.Event) error {
	a.logger.Info("CredentialIssued", eventFields(event)...)
	return nil
}

func (a *AuditService) handleCredentialRevoked(_ context.Context, event events.Event) error {
	a.logger.Warn("CredentialRevoked", eventFields(event)...)
	return nil
}

func (a *AuditService) handleCheckIn(_ context.Context, event events.Event) error {
	if event.Type == events.EventCheckInDenied {
		a.logger.Info("CheckInDenied", eventFields(event)...)
		return nil
	}
	a.logger.Info("CheckInAccepted", eventFields(event)...)
	return nil
}

func eventFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("subject", event.Subject),
		zap.Time("timestamp", event.Timestamp),
		zap.Any("payload", event.Payload),
	}
}
