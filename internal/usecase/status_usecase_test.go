package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/harvester/internal/entity"
)

func TestStatusService_GetStatus(t *testing.T) {
	repo := newMemContentRepo()
	scraped := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	_, err := repo.Insert(context.Background(), &entity.ContentItem{SourceID: urlA, Title: "Seminar", PublishTime: "2024-03-01", ScrapeTime: scraped})
	require.NoError(t, err)
	svc := NewStatusService(repo, zaptest.NewLogger(t))

	st, err := svc.GetStatus(context.Background(), "news", urlA)
	require.NoError(t, err)
	assert.Equal(t, entity.ItemStatusStored, st.Status)
	assert.Equal(t, "Seminar", st.Title)
	require.NotNil(t, st.ScrapeTime)
	assert.Equal(t, scraped, *st.ScrapeTime)

	st, err = svc.GetStatus(context.Background(), "news", urlB)
	require.NoError(t, err)
	assert.Equal(t, entity.ItemStatusNotFound, st.Status)
	assert.Nil(t, st.ScrapeTime)
}
