package batch

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jononovo/sendclaw/internal/composer"
	"github.com/jononovo/sendclaw/internal/model"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// --- モック ---

type mockBatchRepo struct {
	findActiveByUserAndDateFn func(ctx context.Context, userID string, date time.Time) (*model.OutreachBatch, error)
	findByTokenFn             func(ctx context.Context, token string) (*model.OutreachBatch, error)
	findByIDFn                func(ctx context.Context, id string) (*model.OutreachBatch, error)
	createWithItemsFn         func(ctx context.Context, batch *model.OutreachBatch, items []*model.OutreachItem) error
	updateStatusFn            func(ctx context.Context, batchID string, status model.BatchStatus) error
	expireOverdueFn           func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockBatchRepo) FindActiveByUserAndDate(ctx context.Context, userID string, date time.Time) (*model.OutreachBatch, error) {
	if m.findActiveByUserAndDateFn != nil {
		return m.findActiveByUserAndDateFn(ctx, userID, date)
	}
	return nil, nil
}
func (m *mockBatchRepo) FindByToken(ctx context.Context, token string) (*model.OutreachBatch, error) {
	if m.findByTokenFn != nil {
		return m.findByTokenFn(ctx, token)
	}
	return nil, nil
}
func (m *mockBatchRepo) FindByID(ctx context.Context, id string) (*model.OutreachBatch, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockBatchRepo) CreateWithItems(ctx context.Context, batch *model.OutreachBatch, items []*model.OutreachItem) error {
	if m.createWithItemsFn != nil {
		return m.createWithItemsFn(ctx, batch, items)
	}
	return nil
}
func (m *mockBatchRepo) UpdateStatus(ctx context.Context, batchID string, status model.BatchStatus) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, batchID, status)
	}
	return nil
}
func (m *mockBatchRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	if m.expireOverdueFn != nil {
		return m.expireOverdueFn(ctx, now)
	}
	return 0, nil
}

type mockItemRepo struct {
	listByBatchFn         func(ctx context.Context, batchID string) ([]model.OutreachItem, error)
	findByBatchAndIDFn    func(ctx context.Context, batchID, itemID string) (*model.OutreachItem, error)
	updateContentFn       func(ctx context.Context, itemID, subject, body string, edited *string) (*model.OutreachItem, error)
	markSentFn            func(ctx context.Context, itemID string, sentAt time.Time) (*model.OutreachItem, error)
	markSkippedFn         func(ctx context.Context, itemID string) (*model.OutreachItem, error)
	countPendingByBatchFn func(ctx context.Context, batchID string) (int, error)
}

func (m *mockItemRepo) ListByBatch(ctx context.Context, batchID string) ([]model.OutreachItem, error) {
	if m.listByBatchFn != nil {
		return m.listByBatchFn(ctx, batchID)
	}
	return nil, nil
}
func (m *mockItemRepo) FindByBatchAndID(ctx context.Context, batchID, itemID string) (*model.OutreachItem, error) {
	if m.findByBatchAndIDFn != nil {
		return m.findByBatchAndIDFn(ctx, batchID, itemID)
	}
	return nil, nil
}
func (m *mockItemRepo) UpdateContent(ctx context.Context, itemID, subject, body string, edited *string) (*model.OutreachItem, error) {
	if m.updateContentFn != nil {
		return m.updateContentFn(ctx, itemID, subject, body, edited)
	}
	return nil, nil
}
func (m *mockItemRepo) MarkSent(ctx context.Context, itemID string, sentAt time.Time) (*model.OutreachItem, error) {
	if m.markSentFn != nil {
		return m.markSentFn(ctx, itemID, sentAt)
	}
	return nil, nil
}
func (m *mockItemRepo) MarkSkipped(ctx context.Context, itemID string) (*model.OutreachItem, error) {
	if m.markSkippedFn != nil {
		return m.markSkippedFn(ctx, itemID)
	}
	return nil, nil
}
func (m *mockItemRepo) CountPendingByBatch(ctx context.Context, batchID string) (int, error) {
	if m.countPendingByBatchFn != nil {
		return m.countPendingByBatchFn(ctx, batchID)
	}
	return 0, nil
}

type mockContactRepo struct {
	listEligibleFn func(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error)
	listByBatchFn  func(ctx context.Context, batchID string) ([]model.ContactWithCompany, error)
}

func (m *mockContactRepo) ListEligible(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error) {
	if m.listEligibleFn != nil {
		return m.listEligibleFn(ctx, userID, lookbackDays, limit)
	}
	return nil, nil
}

func (m *mockContactRepo) ListByBatch(ctx context.Context, batchID string) ([]model.ContactWithCompany, error) {
	if m.listByBatchFn != nil {
		return m.listByBatchFn(ctx, batchID)
	}
	return nil, nil
}

type mockPrefsRepo struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.OutreachPreferences, error)
}

func (m *mockPrefsRepo) FindByUserID(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, nil
}
func (m *mockPrefsRepo) Upsert(ctx context.Context, prefs *model.OutreachPreferences) error {
	return nil
}
func (m *mockPrefsRepo) UpdateVacation(ctx context.Context, userID string, mode bool, start, end *time.Time) error {
	return nil
}
func (m *mockPrefsRepo) ListEnabled(ctx context.Context) ([]*model.OutreachPreferences, error) {
	return nil, nil
}

type mockComposer struct {
	composeFn func(ctx context.Context, req *composer.ComposeRequest) (*composer.ComposeResponse, error)
}

func (m *mockComposer) Compose(ctx context.Context, req *composer.ComposeRequest) (*composer.ComposeResponse, error) {
	if m.composeFn != nil {
		return m.composeFn(ctx, req)
	}
	return &composer.ComposeResponse{Subject: "subject", Body: "<p>body</p>", Tone: "friendly"}, nil
}

// mockSanitizer は入力をそのまま返すサニタイザー。
type mockSanitizer struct {
	sanitizeFn func(rawHTML string) string
}

func (m *mockSanitizer) Sanitize(rawHTML string) string {
	if m.sanitizeFn != nil {
		return m.sanitizeFn(rawHTML)
	}
	return rawHTML
}

// mockMetrics は呼び出し回数を記録するメトリクスコレクター。
type mockMetrics struct {
	batchesGenerated int
	itemsGenerated   int
	suppressed       map[string]int
	composeFailures  int
	itemsSent        int
	itemsSkipped     int
	batchesExpired   int64
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{suppressed: make(map[string]int)}
}

func (m *mockMetrics) RecordBatchGenerated(itemCount int) {
	m.batchesGenerated++
	m.itemsGenerated += itemCount
}
func (m *mockMetrics) RecordGenerationSuppressed(reason string) { m.suppressed[reason]++ }
func (m *mockMetrics) RecordComposeFailure()                    { m.composeFailures++ }
func (m *mockMetrics) RecordGenerationLatency(d time.Duration)  {}
func (m *mockMetrics) RecordItemSent()                          { m.itemsSent++ }
func (m *mockMetrics) RecordItemSkipped()                       { m.itemsSkipped++ }
func (m *mockMetrics) RecordBatchesExpired(count int64)         { m.batchesExpired += count }
