package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
)

// StatusService answers whether an item has been captured.
type StatusService interface {
	GetStatus(ctx context.Context, platform, sourceID string) (*entity.ItemStatus, error)
}

type statusService struct {
	contentRepo repository.ContentRepository
	logger      *zap.Logger
}

func NewStatusService(contentRepo repository.ContentRepository, logger *zap.Logger) StatusService {
	return &statusService{contentRepo: contentRepo, logger: logger}
}

func (s *statusService) GetStatus(ctx context.Context, platform, sourceID string) (*entity.ItemStatus, error) {
	item, err := s.contentRepo.Find(ctx, platform, sourceID)
	if errors.Is(err, repository.ErrNotFound) {
		return &entity.ItemStatus{SourceID: sourceID, Platform: platform, Status: entity.ItemStatusNotFound}, nil
	}
	if err != nil {
		s.logger.Error("error finding item", zap.String("source_id", sourceID), zap.Error(err))
		return nil, err
	}

	status := &entity.ItemStatus{
		SourceID:    sourceID,
		Platform:    platform,
		Status:      entity.ItemStatusStored,
		Title:       item.Title,
		PublishTime: item.PublishTime,
	}
	if !item.ScrapeTime.IsZero() {
		t := item.ScrapeTime
		status.ScrapeTime = &t
	}
	return status, nil
}
