package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jononovo/sendclaw/internal/composer"
	"github.com/jononovo/sendclaw/internal/model"
	"github.com/jononovo/sendclaw/internal/repository"
)

func strPtr(s string) *string { return &s }

func enabledPrefs() *model.OutreachPreferences {
	return &model.OutreachPreferences{
		UserID:                  "user-1",
		Enabled:                 true,
		ScheduleDays:            []string{"monday", "wednesday", "friday"},
		ScheduleTime:            "09:00",
		Timezone:                "Asia/Tokyo",
		MinContactsRequired:     5,
		ActiveProductID:         strPtr("product-1"),
		ActiveSenderProfileID:   strPtr("sender-1"),
		ActiveCustomerProfileID: strPtr("customer-1"),
	}
}

func eligibleContacts(n int) []model.ContactWithCompany {
	contacts := make([]model.ContactWithCompany, n)
	for i := range contacts {
		contacts[i] = model.ContactWithCompany{
			Contact: model.Contact{
				ID:        "contact-" + string(rune('a'+i)),
				CompanyID: "company-" + string(rune('a'+i)),
				FirstName: "Taro",
				Email:     "taro@example.com",
			},
			CompanyName: "Example Inc",
		}
	}
	return contacts
}

func newTestGenerator(
	batchRepo *mockBatchRepo,
	itemRepo *mockItemRepo,
	contactRepo *mockContactRepo,
	prefsRepo *mockPrefsRepo,
	comp *mockComposer,
	m *mockMetrics,
) *BatchGenerator {
	return NewBatchGenerator(
		batchRepo, itemRepo, contactRepo, prefsRepo,
		comp, &mockSanitizer{}, m, newTestLogger(),
		5, 48*time.Hour, 30,
	)
}

// TestGetOrCreate_CreatesNewBatch は候補コンタクトから新規バッチが生成されることを検証する。
func TestGetOrCreate_CreatesNewBatch(t *testing.T) {
	var createdBatch *model.OutreachBatch
	var createdItems []*model.OutreachItem

	batchRepo := &mockBatchRepo{
		createWithItemsFn: func(ctx context.Context, batch *model.OutreachBatch, items []*model.OutreachItem) error {
			createdBatch = batch
			createdItems = items
			return nil
		},
	}
	contactRepo := &mockContactRepo{
		listEligibleFn: func(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error) {
			if lookbackDays != 30 {
				t.Errorf("lookbackDays = %d, want 30", lookbackDays)
			}
			if limit != 5 {
				t.Errorf("limit = %d, want 5", limit)
			}
			return eligibleContacts(3), nil
		},
	}
	prefsRepo := &mockPrefsRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
			return enabledPrefs(), nil
		},
	}
	m := newMockMetrics()

	g := newTestGenerator(batchRepo, &mockItemRepo{}, contactRepo, prefsRepo, &mockComposer{}, m)

	result, err := g.GetOrCreate(context.Background(), "user-1", time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetOrCreate がエラーを返した: %v", err)
	}

	if result.Outcome != OutcomeCreated {
		t.Errorf("Outcome = %q, want %q", result.Outcome, OutcomeCreated)
	}
	if createdBatch == nil {
		t.Fatal("バッチが作成されていない")
	}
	// 候補が5件未満でも部分バッチとして生成される
	if len(createdItems) != 3 {
		t.Errorf("アイテム数 = %d, want 3", len(createdItems))
	}
	if createdBatch.Status != model.BatchStatusActive {
		t.Errorf("Status = %q, want active", createdBatch.Status)
	}
	if len(createdBatch.SecureToken) != 64 {
		t.Errorf("トークン長 = %d, want 64 (32バイトのhex)", len(createdBatch.SecureToken))
	}

	// batch_dateはUTC深夜0時に正規化される
	wantDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if !createdBatch.BatchDate.Equal(wantDate) {
		t.Errorf("BatchDate = %v, want %v", createdBatch.BatchDate, wantDate)
	}
	// TTLはbatch_date起点
	wantExpiry := wantDate.Add(48 * time.Hour)
	if !createdBatch.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("ExpiresAt = %v, want %v", createdBatch.ExpiresAt, wantExpiry)
	}

	// アイテムは挿入順のposition付きでpending
	for i, item := range createdItems {
		if item.Position != i {
			t.Errorf("items[%d].Position = %d, want %d", i, item.Position, i)
		}
		if item.Status != model.ItemStatusPending {
			t.Errorf("items[%d].Status = %q, want pending", i, item.Status)
		}
	}

	if m.batchesGenerated != 1 || m.itemsGenerated != 3 {
		t.Errorf("メトリクス batches=%d items=%d, want 1/3", m.batchesGenerated, m.itemsGenerated)
	}
}

// TestGetOrCreate_ReturnsExistingBatch は同日バッチが存在する場合にそれを返すことを検証する。
func TestGetOrCreate_ReturnsExistingBatch(t *testing.T) {
	existing := &model.OutreachBatch{ID: "batch-1", UserID: "user-1", Status: model.BatchStatusActive}
	existingItems := []model.OutreachItem{{ID: "item-1"}, {ID: "item-2"}, {ID: "item-3"}}

	batchRepo := &mockBatchRepo{
		findActiveByUserAndDateFn: func(ctx context.Context, userID string, date time.Time) (*model.OutreachBatch, error) {
			return existing, nil
		},
		createWithItemsFn: func(ctx context.Context, batch *model.OutreachBatch, items []*model.OutreachItem) error {
			t.Error("既存バッチがある場合は新規作成してはならない")
			return nil
		},
	}
	itemRepo := &mockItemRepo{
		listByBatchFn: func(ctx context.Context, batchID string) ([]model.OutreachItem, error) {
			return existingItems, nil
		},
	}

	g := newTestGenerator(batchRepo, itemRepo, &mockContactRepo{}, &mockPrefsRepo{}, &mockComposer{}, newMockMetrics())

	result, err := g.GetOrCreate(context.Background(), "user-1", time.Now())
	if err != nil {
		t.Fatalf("GetOrCreate がエラーを返した: %v", err)
	}

	if result.Outcome != OutcomeExisting {
		t.Errorf("Outcome = %q, want %q", result.Outcome, OutcomeExisting)
	}
	if result.Batch.ID != "batch-1" {
		t.Errorf("Batch.ID = %q, want batch-1", result.Batch.ID)
	}
	if len(result.Items) != 3 {
		t.Errorf("アイテム数 = %d, want 3", len(result.Items))
	}
}

// TestGetOrCreate_NoContacts は候補0件で生成しないことを検証する。
func TestGetOrCreate_NoContacts(t *testing.T) {
	contactRepo := &mockContactRepo{
		listEligibleFn: func(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error) {
			return nil, nil
		},
	}
	prefsRepo := &mockPrefsRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
			return enabledPrefs(), nil
		},
	}

	g := newTestGenerator(&mockBatchRepo{}, &mockItemRepo{}, contactRepo, prefsRepo, &mockComposer{}, newMockMetrics())

	result, err := g.GetOrCreate(context.Background(), "user-1", time.Now())
	if err != nil {
		t.Fatalf("候補0件はエラーではない: %v", err)
	}
	if result.Outcome != OutcomeNoContacts {
		t.Errorf("Outcome = %q, want %q", result.Outcome, OutcomeNoContacts)
	}
	if result.Batch != nil {
		t.Error("候補0件ではバッチを作成しない")
	}
}

// TestGetOrCreate_Suppressed は設定による抑止を検証する。
func TestGetOrCreate_Suppressed(t *testing.T) {
	vacStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	vacEnd := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	onVacation := enabledPrefs()
	onVacation.VacationMode = true
	onVacation.VacationStartDate = &vacStart
	onVacation.VacationEndDate = &vacEnd

	disabled := enabledPrefs()
	disabled.Enabled = false

	notReady := enabledPrefs()
	notReady.ActiveProductID = nil

	tests := []struct {
		name       string
		prefs      *model.OutreachPreferences
		wantReason string
	}{
		{"設定なし", nil, SuppressReasonDisabled},
		{"無効化済み", disabled, SuppressReasonDisabled},
		{"休暇中", onVacation, SuppressReasonVacation},
		{"キャンペーン未設定", notReady, SuppressReasonCampaignNotReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefsRepo := &mockPrefsRepo{
				findByUserIDFn: func(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
					return tt.prefs, nil
				},
			}
			m := newMockMetrics()

			g := newTestGenerator(&mockBatchRepo{}, &mockItemRepo{}, &mockContactRepo{}, prefsRepo, &mockComposer{}, m)

			result, err := g.GetOrCreate(context.Background(), "user-1", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
			if err != nil {
				t.Fatalf("抑止はエラーではない: %v", err)
			}
			if result.Outcome != OutcomeSuppressed {
				t.Errorf("Outcome = %q, want %q", result.Outcome, OutcomeSuppressed)
			}
			if result.SuppressReason != tt.wantReason {
				t.Errorf("SuppressReason = %q, want %q", result.SuppressReason, tt.wantReason)
			}
			if m.suppressed[tt.wantReason] != 1 {
				t.Errorf("抑止メトリクス[%s] = %d, want 1", tt.wantReason, m.suppressed[tt.wantReason])
			}
		})
	}
}

// TestGetOrCreate_DuplicateRace は並行生成で負けた場合に勝者のバッチを返すことを検証する。
func TestGetOrCreate_DuplicateRace(t *testing.T) {
	winner := &model.OutreachBatch{ID: "winner-batch", UserID: "user-1", Status: model.BatchStatusActive}

	findCalls := 0
	batchRepo := &mockBatchRepo{
		findActiveByUserAndDateFn: func(ctx context.Context, userID string, date time.Time) (*model.OutreachBatch, error) {
			findCalls++
			if findCalls == 1 {
				// 生成前チェックでは存在しない
				return nil, nil
			}
			// 衝突後の再取得では勝者が見える
			return winner, nil
		},
		createWithItemsFn: func(ctx context.Context, batch *model.OutreachBatch, items []*model.OutreachItem) error {
			return repository.ErrDuplicateActiveBatch
		},
	}
	itemRepo := &mockItemRepo{
		listByBatchFn: func(ctx context.Context, batchID string) ([]model.OutreachItem, error) {
			if batchID != "winner-batch" {
				t.Errorf("batchID = %q, want winner-batch", batchID)
			}
			return []model.OutreachItem{{ID: "item-1"}}, nil
		},
	}
	contactRepo := &mockContactRepo{
		listEligibleFn: func(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error) {
			return eligibleContacts(2), nil
		},
	}
	prefsRepo := &mockPrefsRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
			return enabledPrefs(), nil
		},
	}

	g := newTestGenerator(batchRepo, itemRepo, contactRepo, prefsRepo, &mockComposer{}, newMockMetrics())

	result, err := g.GetOrCreate(context.Background(), "user-1", time.Now())
	if err != nil {
		t.Fatalf("重複衝突はエラーではない: %v", err)
	}
	if result.Outcome != OutcomeExisting {
		t.Errorf("Outcome = %q, want %q", result.Outcome, OutcomeExisting)
	}
	if result.Batch.ID != "winner-batch" {
		t.Errorf("Batch.ID = %q, want winner-batch", result.Batch.ID)
	}
}

// TestGetOrCreate_ComposeFailure_SkipsContact は生成失敗コンタクトの除外を検証する。
func TestGetOrCreate_ComposeFailure_SkipsContact(t *testing.T) {
	var createdItems []*model.OutreachItem

	batchRepo := &mockBatchRepo{
		createWithItemsFn: func(ctx context.Context, batch *model.OutreachBatch, items []*model.OutreachItem) error {
			createdItems = items
			return nil
		},
	}
	contactRepo := &mockContactRepo{
		listEligibleFn: func(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error) {
			return eligibleContacts(3), nil
		},
	}
	prefsRepo := &mockPrefsRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
			return enabledPrefs(), nil
		},
	}

	composeCalls := 0
	comp := &mockComposer{
		composeFn: func(ctx context.Context, req *composer.ComposeRequest) (*composer.ComposeResponse, error) {
			composeCalls++
			if composeCalls == 2 {
				return nil, errors.New("compose failed")
			}
			return &composer.ComposeResponse{Subject: "s", Body: "b", Tone: "t"}, nil
		},
	}
	m := newMockMetrics()

	g := newTestGenerator(batchRepo, &mockItemRepo{}, contactRepo, prefsRepo, comp, m)

	result, err := g.GetOrCreate(context.Background(), "user-1", time.Now())
	if err != nil {
		t.Fatalf("一部の生成失敗はエラーではない: %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Errorf("Outcome = %q, want %q", result.Outcome, OutcomeCreated)
	}
	if len(createdItems) != 2 {
		t.Errorf("アイテム数 = %d, want 2（失敗分は除外）", len(createdItems))
	}
	// positionは除外後も連続する
	for i, item := range createdItems {
		if item.Position != i {
			t.Errorf("items[%d].Position = %d, want %d", i, item.Position, i)
		}
	}
	if m.composeFailures != 1 {
		t.Errorf("composeFailures = %d, want 1", m.composeFailures)
	}
}

// TestGetOrCreate_AllComposeFail は全件生成失敗がエラーになることを検証する。
func TestGetOrCreate_AllComposeFail(t *testing.T) {
	contactRepo := &mockContactRepo{
		listEligibleFn: func(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error) {
			return eligibleContacts(2), nil
		},
	}
	prefsRepo := &mockPrefsRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
			return enabledPrefs(), nil
		},
	}
	comp := &mockComposer{
		composeFn: func(ctx context.Context, req *composer.ComposeRequest) (*composer.ComposeResponse, error) {
			return nil, errors.New("compose failed")
		},
	}

	g := newTestGenerator(&mockBatchRepo{}, &mockItemRepo{}, contactRepo, prefsRepo, comp, newMockMetrics())

	_, err := g.GetOrCreate(context.Background(), "user-1", time.Now())
	if err == nil {
		t.Fatal("全件生成失敗はエラーになるべき")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIError であるべき: got %T", err)
	}
	if apiErr.Code != model.ErrCodeComposeFailed {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeComposeFailed)
	}
}

// TestGetOrCreate_SanitizesBody は生成された本文がサニタイズされることを検証する。
func TestGetOrCreate_SanitizesBody(t *testing.T) {
	var createdItems []*model.OutreachItem

	batchRepo := &mockBatchRepo{
		createWithItemsFn: func(ctx context.Context, batch *model.OutreachBatch, items []*model.OutreachItem) error {
			createdItems = items
			return nil
		},
	}
	contactRepo := &mockContactRepo{
		listEligibleFn: func(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error) {
			return eligibleContacts(1), nil
		},
	}
	prefsRepo := &mockPrefsRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
			return enabledPrefs(), nil
		},
	}
	comp := &mockComposer{
		composeFn: func(ctx context.Context, req *composer.ComposeRequest) (*composer.ComposeResponse, error) {
			return &composer.ComposeResponse{Subject: "s", Body: "<p>hi</p><script>bad()</script>", Tone: "t"}, nil
		},
	}
	sanitizer := &mockSanitizer{
		sanitizeFn: func(rawHTML string) string {
			return "<p>hi</p>"
		},
	}

	g := NewBatchGenerator(
		batchRepo, &mockItemRepo{}, contactRepo, prefsRepo,
		comp, sanitizer, newMockMetrics(), newTestLogger(),
		5, 48*time.Hour, 30,
	)

	_, err := g.GetOrCreate(context.Background(), "user-1", time.Now())
	if err != nil {
		t.Fatalf("GetOrCreate がエラーを返した: %v", err)
	}
	if createdItems[0].EmailBody != "<p>hi</p>" {
		t.Errorf("EmailBody = %q, サニタイズ済みであるべき", createdItems[0].EmailBody)
	}
}

// TestRegenerate_ExpiresExistingBatch は再生成で既存バッチが失効することを検証する。
func TestRegenerate_ExpiresExistingBatch(t *testing.T) {
	existing := &model.OutreachBatch{ID: "old-batch", UserID: "user-1", Status: model.BatchStatusActive}

	var expiredID string
	var createdBatch *model.OutreachBatch

	findCalls := 0
	batchRepo := &mockBatchRepo{
		findActiveByUserAndDateFn: func(ctx context.Context, userID string, date time.Time) (*model.OutreachBatch, error) {
			findCalls++
			if findCalls == 1 {
				return existing, nil
			}
			return nil, nil
		},
		updateStatusFn: func(ctx context.Context, batchID string, status model.BatchStatus) error {
			if status != model.BatchStatusExpired {
				t.Errorf("status = %q, want expired", status)
			}
			expiredID = batchID
			return nil
		},
		createWithItemsFn: func(ctx context.Context, batch *model.OutreachBatch, items []*model.OutreachItem) error {
			createdBatch = batch
			return nil
		},
	}
	contactRepo := &mockContactRepo{
		listEligibleFn: func(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error) {
			return eligibleContacts(2), nil
		},
	}
	prefsRepo := &mockPrefsRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
			return enabledPrefs(), nil
		},
	}

	g := newTestGenerator(batchRepo, &mockItemRepo{}, contactRepo, prefsRepo, &mockComposer{}, newMockMetrics())

	result, err := g.Regenerate(context.Background(), "user-1", time.Now())
	if err != nil {
		t.Fatalf("Regenerate がエラーを返した: %v", err)
	}

	if expiredID != "old-batch" {
		t.Errorf("失効したバッチID = %q, want old-batch", expiredID)
	}
	if result.Outcome != OutcomeCreated {
		t.Errorf("Outcome = %q, want %q", result.Outcome, OutcomeCreated)
	}
	if createdBatch == nil || createdBatch.ID == "old-batch" {
		t.Error("新しいバッチが作成されるべき")
	}
}

// TestRegenerate_NoExistingBatch は既存バッチがない場合もそのまま生成されることを検証する。
func TestRegenerate_NoExistingBatch(t *testing.T) {
	var created bool
	batchRepo := &mockBatchRepo{
		createWithItemsFn: func(ctx context.Context, batch *model.OutreachBatch, items []*model.OutreachItem) error {
			created = true
			return nil
		},
		updateStatusFn: func(ctx context.Context, batchID string, status model.BatchStatus) error {
			t.Error("既存バッチがない場合は失効させるものがない")
			return nil
		},
	}
	contactRepo := &mockContactRepo{
		listEligibleFn: func(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error) {
			return eligibleContacts(1), nil
		},
	}
	prefsRepo := &mockPrefsRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
			return enabledPrefs(), nil
		},
	}

	g := newTestGenerator(batchRepo, &mockItemRepo{}, contactRepo, prefsRepo, &mockComposer{}, newMockMetrics())

	result, err := g.Regenerate(context.Background(), "user-1", time.Now())
	if err != nil {
		t.Fatalf("Regenerate がエラーを返した: %v", err)
	}
	if !created || result.Outcome != OutcomeCreated {
		t.Errorf("新しいバッチが作成されるべき: created=%v outcome=%q", created, result.Outcome)
	}
}

// TestGetOrCreate_UsesMinContactsRequired はユーザー設定のバッチサイズが優先されることを検証する。
func TestGetOrCreate_UsesMinContactsRequired(t *testing.T) {
	prefs := enabledPrefs()
	prefs.MinContactsRequired = 8

	contactRepo := &mockContactRepo{
		listEligibleFn: func(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error) {
			if limit != 8 {
				t.Errorf("limit = %d, want 8", limit)
			}
			return eligibleContacts(1), nil
		},
	}
	prefsRepo := &mockPrefsRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
			return prefs, nil
		},
	}

	g := newTestGenerator(&mockBatchRepo{}, &mockItemRepo{}, contactRepo, prefsRepo, &mockComposer{}, newMockMetrics())

	if _, err := g.GetOrCreate(context.Background(), "user-1", time.Now()); err != nil {
		t.Fatalf("GetOrCreate がエラーを返した: %v", err)
	}
}
