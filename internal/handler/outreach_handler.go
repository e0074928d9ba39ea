package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jononovo/sendclaw/internal/middleware"
	"github.com/jononovo/sendclaw/internal/model"
)

// vacationDateFormat は休暇期間の日付フォーマット。
const vacationDateFormat = "2006-01-02"

// TriggerServiceInterface はバッチトリガーのサービスインターフェース。
type TriggerServiceInterface interface {
	// Trigger は当日バッチの取得または生成を実行する。
	// regenerateがtrueの場合は既存バッチを失効させて作り直す。
	Trigger(ctx context.Context, userID string, regenerate bool) (*triggerResponse, error)
}

// StatsServiceInterface はストリーク統計のサービスインターフェース。
type StatsServiceInterface interface {
	// GetStats はバッチ/アイテム履歴から統計を導出する。
	GetStats(ctx context.Context, userID string) (*statsResponse, error)
}

// PreferencesServiceInterface はアウトリーチ設定のサービスインターフェース。
type PreferencesServiceInterface interface {
	// GetPreferences はユーザーの設定を返す。未設定の場合はnilを返す。
	GetPreferences(ctx context.Context, userID string) (*preferencesResponse, error)
	// UpdatePreferences は設定を検証してUPSERTし、保存後の値を返す。
	UpdatePreferences(ctx context.Context, userID string, req preferencesRequest) (*preferencesResponse, error)
	// SetVacation は休暇モードと期間を更新する。
	SetVacation(ctx context.Context, userID string, mode bool, start, end *time.Time) error
}

// OutreachHandler は認証済みユーザー向けのアウトリーチ管理ハンドラー。
type OutreachHandler struct {
	triggerService TriggerServiceInterface
	statsService   StatsServiceInterface
	prefsService   PreferencesServiceInterface
}

// NewOutreachHandler はOutreachHandlerを生成する。
func NewOutreachHandler(
	triggerService TriggerServiceInterface,
	statsService StatsServiceInterface,
	prefsService PreferencesServiceInterface,
) *OutreachHandler {
	return &OutreachHandler{
		triggerService: triggerService,
		statsService:   statsService,
		prefsService:   prefsService,
	}
}

// --- リクエスト/レスポンス型 ---

// triggerRequest はバッチトリガーリクエストのボディ。
type triggerRequest struct {
	Regenerate bool `json:"regenerate,omitempty"`
}

// triggerResponse はバッチトリガーのレスポンス。
// no_contactsやsuppressedも正常系（200）として返し、outcomeで区別する。
type triggerResponse struct {
	Success bool   `json:"success"`
	Outcome string `json:"outcome"` // created / existing / no_contacts / suppressed
	Message string `json:"message,omitempty"`
	// 生成または取得できた場合のみ設定
	Batch     *batchResponse `json:"batch,omitempty"`
	ItemCount int            `json:"item_count,omitempty"`
	// バッチアクセス用のトークン。UI側で共有リンクを構成する。
	SecureToken string `json:"secure_token,omitempty"`
}

// windowCountsResponse は期間ウィンドウごとの送信実績レスポンス。
type windowCountsResponse struct {
	EmailsSent         int `json:"emails_sent"`
	CompaniesContacted int `json:"companies_contacted"`
}

// statsResponse はストリーク統計のレスポンス。
type statsResponse struct {
	CurrentStreak  int                  `json:"current_streak"`
	LongestStreak  int                  `json:"longest_streak"`
	WeeklyGoal     int                  `json:"weekly_goal"`
	WeeklyProgress int                  `json:"weekly_progress"`
	Today          windowCountsResponse `json:"today"`
	Week           windowCountsResponse `json:"week"`
	Month          windowCountsResponse `json:"month"`
	AllTime        windowCountsResponse `json:"all_time"`
}

// preferencesRequest はアウトリーチ設定更新リクエストのボディ。
type preferencesRequest struct {
	Enabled                 bool     `json:"enabled"`
	ScheduleDays            []string `json:"schedule_days"`
	ScheduleTime            string   `json:"schedule_time"`
	Timezone                string   `json:"timezone"`
	MinContactsRequired     int      `json:"min_contacts_required"`
	ActiveProductID         *string  `json:"active_product_id,omitempty"`
	ActiveSenderProfileID   *string  `json:"active_sender_profile_id,omitempty"`
	ActiveCustomerProfileID *string  `json:"active_customer_profile_id,omitempty"`
}

// preferencesResponse はアウトリーチ設定のレスポンス。
type preferencesResponse struct {
	UserID                  string   `json:"user_id"`
	Enabled                 bool     `json:"enabled"`
	ScheduleDays            []string `json:"schedule_days"`
	ScheduleTime            string   `json:"schedule_time"`
	Timezone                string   `json:"timezone"`
	MinContactsRequired     int      `json:"min_contacts_required"`
	VacationMode            bool     `json:"vacation_mode"`
	VacationStartDate       *string  `json:"vacation_start_date,omitempty"` // "2006-01-02"
	VacationEndDate         *string  `json:"vacation_end_date,omitempty"`
	ActiveProductID         *string  `json:"active_product_id,omitempty"`
	ActiveSenderProfileID   *string  `json:"active_sender_profile_id,omitempty"`
	ActiveCustomerProfileID *string  `json:"active_customer_profile_id,omitempty"`
}

// vacationRequest は休暇設定更新リクエストのボディ。
type vacationRequest struct {
	VacationMode      bool    `json:"vacation_mode"`
	VacationStartDate *string `json:"vacation_start_date,omitempty"` // "2006-01-02"
	VacationEndDate   *string `json:"vacation_end_date,omitempty"`
}

// unauthorizedError は認証エラーのAPIErrorを返す。
func unauthorizedError() *model.APIError {
	return &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// Trigger は当日バッチの取得または生成を実行する。
// POST /api/daily-outreach/trigger
func (h *OutreachHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	// ボディは省略可能（省略時は通常のGetOrCreate）
	var req triggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "リクエストボディの解析に失敗しました。",
				Category: "validation",
				Action:   "正しいJSON形式でリクエストしてください。",
			})
			return
		}
	}

	result, err := h.triggerService.Trigger(r.Context(), userID, req.Regenerate)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetStats はストリーク統計を取得する。
// GET /api/daily-outreach/streak-stats
func (h *OutreachHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	stats, err := h.statsService.GetStats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// GetPreferences はアウトリーチ設定を取得する。
// GET /api/daily-outreach/preferences
func (h *OutreachHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	prefs, err := h.prefsService.GetPreferences(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if prefs == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "PREFERENCES_NOT_FOUND",
			Message:  "アウトリーチ設定が見つかりません。",
			Category: "outreach",
			Action:   "設定を作成してください。",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}

// UpdatePreferences はアウトリーチ設定を更新する。
// PUT /api/daily-outreach/preferences
func (h *OutreachHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	prefs, err := h.prefsService.UpdatePreferences(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}

// SetVacation は休暇モードと期間を更新する。
// PUT /api/daily-outreach/vacation
func (h *OutreachHandler) SetVacation(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	var req vacationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	start, err := parseVacationDate(req.VacationStartDate)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPreferencesError("vacation_start_dateの形式が不正です"))
		return
	}
	end, err := parseVacationDate(req.VacationEndDate)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPreferencesError("vacation_end_dateの形式が不正です"))
		return
	}

	if err := h.prefsService.SetVacation(r.Context(), userID, req.VacationMode, start, end); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// parseVacationDate は"2006-01-02"形式の日付文字列をパースする。nilはそのまま返す。
func parseVacationDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(vacationDateFormat, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
