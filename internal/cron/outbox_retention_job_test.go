package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/pkg/db/dbtest"
	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
	"github.com/medstock/medstock-backend/pkg/logger"
	"github.com/medstock/medstock-backend/pkg/outbox"
)

func TestOutboxRetentionJobDrainsInBatches(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &scriptedPruner{results: []int64{3, 3, 1}}
	job := newRetentionJob(t, pruner, OutboxRetentionJobParams{BatchSize: 3})
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pruner.calls) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(pruner.calls))
	}
	want := now.Add(-defaultOutboxRetention)
	for _, c := range pruner.calls {
		if !c.cutoff.Equal(want) || c.limit != 3 {
			t.Fatalf("unexpected call %+v, want cutoff %s limit 3", c, want)
		}
	}
}

func TestOutboxRetentionJobStopsOnError(t *testing.T) {
	pruner := &scriptedPruner{results: []int64{defaultRetentionBatch}, err: errors.New("boom")}
	job := newRetentionJob(t, pruner, OutboxRetentionJobParams{})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(pruner.calls) != 2 {
		t.Fatalf("expected failure on second batch, got %d calls", len(pruner.calls))
	}
}

func TestOutboxRetentionJobKeepsRecentAndUnpublishedRows(t *testing.T) {
	client := dbtest.NewClient(t)
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-2 * 24 * time.Hour)

	seed := []models.OutboxEvent{
		{EventType: enums.EventPointsCharged, AggregateType: enums.AggregatePointsAccount, Payload: []byte(`{}`), PublishedAt: &old},
		{EventType: enums.EventPointsCharged, AggregateType: enums.AggregatePointsAccount, Payload: []byte(`{}`), PublishedAt: &old},
		{EventType: enums.EventPointsCharged, AggregateType: enums.AggregatePointsAccount, Payload: []byte(`{}`), PublishedAt: &recent},
		{EventType: enums.EventPointsCharged, AggregateType: enums.AggregatePointsAccount, Payload: []byte(`{}`)},
	}
	for i := range seed {
		if err := client.DB().Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed outbox row: %v", err)
		}
	}

	job := newRetentionJob(t, outbox.NewRepository(client.DB()), OutboxRetentionJobParams{BatchSize: 1})
	job.now = func() time.Time { return now }
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var remaining int64
	if err := client.DB().Model(&models.OutboxEvent{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected recent and unpublished rows to remain, got %d", remaining)
	}
}

func newRetentionJob(t *testing.T, pruner publishedEventPruner, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	params.Repository = pruner
	job, err := NewOutboxRetentionJob(params)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	return job.(*outboxRetentionJob)
}

type pruneCall struct {
	cutoff time.Time
	limit  int
}

// scriptedPruner returns results in order, then err (or zero) once they run out.
type scriptedPruner struct {
	results []int64
	err     error
	calls   []pruneCall
}

func (p *scriptedPruner) DeletePublishedBefore(_ *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	p.calls = append(p.calls, pruneCall{cutoff: cutoff, limit: limit})
	if i := len(p.calls) - 1; i < len(p.results) {
		return p.results[i], nil
	}
	return 0, p.err
}
