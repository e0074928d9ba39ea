package handler

import (
	"context"
	"time"

	"github.com/jononovo/sendclaw/internal/batch"
	"github.com/jononovo/sendclaw/internal/composer"
	"github.com/jononovo/sendclaw/internal/model"
	"github.com/jononovo/sendclaw/internal/preferences"
	"github.com/jononovo/sendclaw/internal/repository"
	"github.com/jononovo/sendclaw/internal/stats"
)

// BatchStateServiceAdapter は batch.BatchStateService を
// BatchStateServiceInterface に適合させるアダプタ。
// 保存された本文はマージフィールド（{first_name}等）を未解決のまま持つため、
// レスポンス生成時にコンタクト情報で解決する。
type BatchStateServiceAdapter struct {
	svc         *batch.BatchStateService
	contactRepo repository.ContactRepository
}

// NewBatchStateServiceAdapter はBatchStateServiceAdapterを生成する。
func NewBatchStateServiceAdapter(svc *batch.BatchStateService, contactRepo repository.ContactRepository) *BatchStateServiceAdapter {
	return &BatchStateServiceAdapter{svc: svc, contactRepo: contactRepo}
}

// GetBatch はトークンでバッチとアイテム一覧をhandlerレスポンス型で返す。
func (a *BatchStateServiceAdapter) GetBatch(ctx context.Context, token string) (*batchDetailResponse, error) {
	b, items, err := a.svc.GetBatch(ctx, token, time.Now())
	if err != nil {
		return nil, err
	}

	merge, err := a.mergeDataByContact(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	responses := make([]itemResponse, len(items))
	for i := range items {
		responses[i] = renderedItemResponse(&items[i], merge[items[i].ContactID])
	}

	return &batchDetailResponse{
		Batch: toBatchResponse(b),
		Items: responses,
	}, nil
}

// UpdateItem はアイテムの件名・本文を更新しhandlerレスポンス型で返す。
func (a *BatchStateServiceAdapter) UpdateItem(ctx context.Context, token, itemID string, subject, body *string) (*itemResponse, error) {
	item, err := a.svc.UpdateItem(ctx, token, itemID, batch.ItemUpdate{
		EmailSubject: subject,
		EmailBody:    body,
	}, time.Now())
	if err != nil {
		return nil, err
	}
	return a.renderItem(ctx, item)
}

// MarkSent はアイテムを送信済みに遷移させhandlerレスポンス型で返す。
func (a *BatchStateServiceAdapter) MarkSent(ctx context.Context, token, itemID string, suppressCompletion bool) (*itemResponse, error) {
	item, err := a.svc.MarkSent(ctx, token, itemID, time.Now(), batch.TransitionOptions{
		SuppressCompletion: suppressCompletion,
	})
	if err != nil {
		return nil, err
	}
	return a.renderItem(ctx, item)
}

// MarkSkipped はアイテムをスキップ済みに遷移させhandlerレスポンス型で返す。
func (a *BatchStateServiceAdapter) MarkSkipped(ctx context.Context, token, itemID string, suppressCompletion bool) (*itemResponse, error) {
	item, err := a.svc.MarkSkipped(ctx, token, itemID, time.Now(), batch.TransitionOptions{
		SuppressCompletion: suppressCompletion,
	})
	if err != nil {
		return nil, err
	}
	return a.renderItem(ctx, item)
}

// mergeDataByContact はバッチのコンタクトをcontact_idをキーにMergeDataへ変換する。
func (a *BatchStateServiceAdapter) mergeDataByContact(ctx context.Context, batchID string) (map[string]composer.MergeData, error) {
	contacts, err := a.contactRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	merge := make(map[string]composer.MergeData, len(contacts))
	for i := range contacts {
		merge[contacts[i].ID] = composer.MergeDataFromContact(&contacts[i])
	}
	return merge, nil
}

// renderItem は単一アイテムのマージフィールドを解決してレスポンス型で返す。
func (a *BatchStateServiceAdapter) renderItem(ctx context.Context, item *model.OutreachItem) (*itemResponse, error) {
	merge, err := a.mergeDataByContact(ctx, item.BatchID)
	if err != nil {
		return nil, err
	}
	resp := renderedItemResponse(item, merge[item.ContactID])
	return &resp, nil
}

// renderedItemResponse はアイテムをレスポンス型に変換し、件名・本文の
// マージフィールドを解決する。コンタクトが見つからない場合は
// MergeDataがゼロ値となり、プレースホルダーはそのまま残る。
func renderedItemResponse(item *model.OutreachItem, data composer.MergeData) itemResponse {
	resp := toItemResponse(item)
	resp.EmailSubject = composer.Render(resp.EmailSubject, data)
	resp.EmailBody = composer.Render(resp.EmailBody, data)
	return resp
}

// TriggerServiceAdapter は batch.BatchGenerator を TriggerServiceInterface に適合させるアダプタ。
// batch_dateはユーザーのタイムゾーンのローカル日付で決まるため、設定の参照が必要。
type TriggerServiceAdapter struct {
	generator *batch.BatchGenerator
	prefsRepo repository.PreferencesRepository
}

// NewTriggerServiceAdapter はTriggerServiceAdapterを生成する。
func NewTriggerServiceAdapter(generator *batch.BatchGenerator, prefsRepo repository.PreferencesRepository) *TriggerServiceAdapter {
	return &TriggerServiceAdapter{generator: generator, prefsRepo: prefsRepo}
}

// Trigger は当日バッチの取得または生成を実行しhandlerレスポンス型で返す。
func (a *TriggerServiceAdapter) Trigger(ctx context.Context, userID string, regenerate bool) (*triggerResponse, error) {
	prefs, err := a.prefsRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	if prefs != nil {
		loc = prefs.Location()
	}
	localNow := time.Now().In(loc)

	var result *batch.GenerationResult
	if regenerate {
		result, err = a.generator.Regenerate(ctx, userID, localNow)
	} else {
		result, err = a.generator.GetOrCreate(ctx, userID, localNow)
	}
	if err != nil {
		return nil, err
	}

	return toTriggerResponse(result), nil
}

// toTriggerResponse は生成結果をhandlerレスポンス型に変換する。
func toTriggerResponse(result *batch.GenerationResult) *triggerResponse {
	resp := &triggerResponse{
		Outcome: string(result.Outcome),
	}

	switch result.Outcome {
	case batch.OutcomeCreated, batch.OutcomeExisting:
		resp.Success = true
	case batch.OutcomeNoContacts:
		resp.Message = "送信候補のコンタクトがありません。"
	case batch.OutcomeSuppressed:
		resp.Message = suppressReasonMessage(result.SuppressReason)
	}

	if result.Batch != nil {
		b := toBatchResponse(result.Batch)
		resp.Batch = &b
		resp.ItemCount = len(result.Items)
		resp.SecureToken = result.Batch.SecureToken
	}

	return resp
}

// suppressReasonMessage は生成抑止理由のユーザー向けメッセージを返す。
func suppressReasonMessage(reason string) string {
	switch reason {
	case batch.SuppressReasonDisabled:
		return "デイリーアウトリーチが無効になっています。"
	case batch.SuppressReasonVacation:
		return "休暇モード中のため生成をスキップしました。"
	case batch.SuppressReasonCampaignNotReady:
		return "キャンペーン設定（プロダクト・送信者・顧客プロファイル）が未完了です。"
	default:
		return "バッチ生成がスキップされました。"
	}
}

// StatsServiceAdapter は stats.StatsService を StatsServiceInterface に適合させるアダプタ。
type StatsServiceAdapter struct {
	svc *stats.StatsService
}

// NewStatsServiceAdapter はStatsServiceAdapterを生成する。
func NewStatsServiceAdapter(svc *stats.StatsService) *StatsServiceAdapter {
	return &StatsServiceAdapter{svc: svc}
}

// GetStats は統計を計算しhandlerレスポンス型で返す。
func (a *StatsServiceAdapter) GetStats(ctx context.Context, userID string) (*statsResponse, error) {
	s, err := a.svc.Compute(ctx, userID, time.Now())
	if err != nil {
		return nil, err
	}

	return &statsResponse{
		CurrentStreak:  s.CurrentStreak,
		LongestStreak:  s.LongestStreak,
		WeeklyGoal:     s.WeeklyGoal,
		WeeklyProgress: s.WeeklyProgress,
		Today:          toWindowCountsResponse(s.Today),
		Week:           toWindowCountsResponse(s.Week),
		Month:          toWindowCountsResponse(s.Month),
		AllTime:        toWindowCountsResponse(s.AllTime),
	}, nil
}

// toWindowCountsResponse はドメインのWindowCountsをレスポンス型に変換する。
func toWindowCountsResponse(w model.WindowCounts) windowCountsResponse {
	return windowCountsResponse{
		EmailsSent:         w.EmailsSent,
		CompaniesContacted: w.CompaniesContacted,
	}
}

// PreferencesServiceAdapter は preferences.PreferencesService を
// PreferencesServiceInterface に適合させるアダプタ。
type PreferencesServiceAdapter struct {
	svc *preferences.PreferencesService
}

// NewPreferencesServiceAdapter はPreferencesServiceAdapterを生成する。
func NewPreferencesServiceAdapter(svc *preferences.PreferencesService) *PreferencesServiceAdapter {
	return &PreferencesServiceAdapter{svc: svc}
}

// GetPreferences はユーザーの設定をhandlerレスポンス型で返す。
func (a *PreferencesServiceAdapter) GetPreferences(ctx context.Context, userID string) (*preferencesResponse, error) {
	prefs, err := a.svc.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		return nil, nil
	}
	resp := toPreferencesResponse(prefs)
	return &resp, nil
}

// UpdatePreferences は設定をUPSERTしhandlerレスポンス型で返す。
// UPSERTは全カラムを上書きするため、休暇設定は既存値を引き継ぐ
// （休暇の更新はSetVacation専用エンドポイントで行う）。
func (a *PreferencesServiceAdapter) UpdatePreferences(ctx context.Context, userID string, req preferencesRequest) (*preferencesResponse, error) {
	existing, err := a.svc.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	prefs := &model.OutreachPreferences{
		UserID:                  userID,
		Enabled:                 req.Enabled,
		ScheduleDays:            req.ScheduleDays,
		ScheduleTime:            req.ScheduleTime,
		Timezone:                req.Timezone,
		MinContactsRequired:     req.MinContactsRequired,
		ActiveProductID:         req.ActiveProductID,
		ActiveSenderProfileID:   req.ActiveSenderProfileID,
		ActiveCustomerProfileID: req.ActiveCustomerProfileID,
	}
	if existing != nil {
		prefs.VacationMode = existing.VacationMode
		prefs.VacationStartDate = existing.VacationStartDate
		prefs.VacationEndDate = existing.VacationEndDate
	}

	updated, err := a.svc.Update(ctx, prefs)
	if err != nil {
		return nil, err
	}

	resp := toPreferencesResponse(updated)
	return &resp, nil
}

// SetVacation は休暇モードと期間を更新する。
func (a *PreferencesServiceAdapter) SetVacation(ctx context.Context, userID string, mode bool, start, end *time.Time) error {
	return a.svc.SetVacation(ctx, userID, mode, start, end)
}

// toPreferencesResponse はドメインの設定をhandlerレスポンス型に変換する。
func toPreferencesResponse(prefs *model.OutreachPreferences) preferencesResponse {
	return preferencesResponse{
		UserID:                  prefs.UserID,
		Enabled:                 prefs.Enabled,
		ScheduleDays:            prefs.ScheduleDays,
		ScheduleTime:            prefs.ScheduleTime,
		Timezone:                prefs.Timezone,
		MinContactsRequired:     prefs.MinContactsRequired,
		VacationMode:            prefs.VacationMode,
		VacationStartDate:       formatVacationDate(prefs.VacationStartDate),
		VacationEndDate:         formatVacationDate(prefs.VacationEndDate),
		ActiveProductID:         prefs.ActiveProductID,
		ActiveSenderProfileID:   prefs.ActiveSenderProfileID,
		ActiveCustomerProfileID: prefs.ActiveCustomerProfileID,
	}
}

// formatVacationDate は日付を"2006-01-02"形式の文字列に変換する。nilはそのまま返す。
func formatVacationDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(vacationDateFormat)
	return &s
}

// --- compile-time interface checks ---

var _ BatchStateServiceInterface = (*BatchStateServiceAdapter)(nil)
var _ TriggerServiceInterface = (*TriggerServiceAdapter)(nil)
var _ StatsServiceInterface = (*StatsServiceAdapter)(nil)
var _ PreferencesServiceInterface = (*PreferencesServiceAdapter)(nil)
