package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/concern-service/internal/domain"
)

// loggingChatGateway stands in for the external chat collaborator. Real
// deployments swap this for the messaging service client.
type loggingChatGateway struct {
	logger *zap.Logger
}

// NewLoggingChatGateway returns a ChatGateway that only logs invocations.
func NewLoggingChatGateway(logger *zap.Logger) ChatGateway {
	return &loggingChatGateway{logger: logger}
}

func (g *loggingChatGateway) Open(ctx context.Context, concern *domain.Concern, authorID string, message string) error {
	g.logger.Info("chat channel opened",
		zap.String("concern_id", concern.ID),
		zap.String("reference", concern.ReferenceNumber),
		zap.String("author_id", authorID),
		zap.String("message", message))
	return nil
}

func (g *loggingChatGateway) Close(ctx context.Context, concernID string) error {
	g.logger.Info("chat channel closed", zap.String("concern_id", concernID))
	return nil
}

func (g *loggingChatGateway) Reopen(ctx context.Context, concernID string) error {
	g.logger.Info("chat channel reopened", zap.String("concern_id", concernID))
	return nil
}
