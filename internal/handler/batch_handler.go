// Package handler はHTTP APIのハンドラー層を提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jononovo/sendclaw/internal/model"
)

// BatchStateServiceInterface はバッチハンドラーが必要とするサービスインターフェース。
// トークンが認可そのものであり、ユーザーIDは要求しない。
type BatchStateServiceInterface interface {
	// GetBatch はトークンでバッチとアイテム一覧を取得する。
	GetBatch(ctx context.Context, token string) (*batchDetailResponse, error)
	// UpdateItem はpendingアイテムの件名・本文を上書きする。
	UpdateItem(ctx context.Context, token, itemID string, subject, body *string) (*itemResponse, error)
	// MarkSent はアイテムを送信済みに遷移させる。送信済みへの再送信は冪等。
	MarkSent(ctx context.Context, token, itemID string, suppressCompletion bool) (*itemResponse, error)
	// MarkSkipped はアイテムをスキップ済みに遷移させる。
	MarkSkipped(ctx context.Context, token, itemID string, suppressCompletion bool) (*itemResponse, error)
}

// BatchHandler はトークンアクセスのバッチ操作を処理するHTTPハンドラー。
type BatchHandler struct {
	service BatchStateServiceInterface
}

// NewBatchHandler はBatchHandlerを生成する。
func NewBatchHandler(service BatchStateServiceInterface) *BatchHandler {
	return &BatchHandler{service: service}
}

// --- レスポンス型 ---

// batchResponse はバッチのレスポンス。
type batchResponse struct {
	ID        string    `json:"id"`
	BatchDate string    `json:"batch_date"` // "2006-01-02"
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// itemResponse はアウトリーチアイテムのレスポンス。
type itemResponse struct {
	ID            string     `json:"id"`
	BatchID       string     `json:"batch_id"`
	ContactID     string     `json:"contact_id"`
	CompanyID     string     `json:"company_id"`
	Position      int        `json:"position"`
	EmailSubject  string     `json:"email_subject"`
	EmailBody     string     `json:"email_body"` // サニタイズ済みHTML
	EmailTone     string     `json:"email_tone"`
	EditedContent *string    `json:"edited_content,omitempty"`
	Status        string     `json:"status"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
}

// batchDetailResponse はバッチとアイテム一覧のレスポンス。
type batchDetailResponse struct {
	Batch batchResponse  `json:"batch"`
	Items []itemResponse `json:"items"`
}

// itemUpdateRequest はアイテム内容更新リクエストのボディ。
type itemUpdateRequest struct {
	EmailSubject *string `json:"email_subject,omitempty"`
	EmailBody    *string `json:"email_body,omitempty"`
}

// apiErrorResponse はAPIエラーのレスポンスボディ。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// GetBatch はトークンでバッチとアイテム一覧を取得する。
// GET /api/daily-outreach/batch/:token
func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	detail, err := h.service.GetBatch(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

// UpdateItem はアイテムの件名・本文を編集する。編集してもpending状態を維持する。
// PUT /api/daily-outreach/batch/:token/item/:itemID
func (h *BatchHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	itemID := chi.URLParam(r, "itemID")

	var req itemUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.EmailSubject == nil && req.EmailBody == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "email_subjectまたはemail_bodyのいずれかを指定してください。",
			Category: "validation",
			Action:   "更新するフィールドを指定してください。",
		})
		return
	}

	item, err := h.service.UpdateItem(r.Context(), token, itemID, req.EmailSubject, req.EmailBody)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

// MarkSent はアイテムを送信済みに遷移させる。
// POST /api/daily-outreach/batch/:token/item/:itemID/sent?suppress_completion=1
func (h *BatchHandler) MarkSent(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	itemID := chi.URLParam(r, "itemID")
	suppress := r.URL.Query().Get("suppress_completion") == "1"

	item, err := h.service.MarkSent(r.Context(), token, itemID, suppress)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

// MarkSkipped はアイテムをスキップ済みに遷移させる。
// POST /api/daily-outreach/batch/:token/item/:itemID/skip?suppress_completion=1
func (h *BatchHandler) MarkSkipped(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	itemID := chi.URLParam(r, "itemID")
	suppress := r.URL.Query().Get("suppress_completion") == "1"

	item, err := h.service.MarkSkipped(r.Context(), token, itemID, suppress)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

// --- 共通ヘルパー ---

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
// 失効リンクは読み取りを含む全操作で410を返す。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeBatchNotFound, model.ErrCodeItemNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeBatchExpired:
		return http.StatusGone
	case model.ErrCodeInvalidItemState:
		return http.StatusConflict
	case model.ErrCodeInvalidPreferences:
		return http.StatusBadRequest
	case model.ErrCodeComposeFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// toBatchResponse はドメインのバッチをレスポンス型に変換する。
// secure_tokenはURLパスで既知のため、レスポンスには含めない。
func toBatchResponse(b *model.OutreachBatch) batchResponse {
	return batchResponse{
		ID:        b.ID,
		BatchDate: b.BatchDate.Format("2006-01-02"),
		Status:    string(b.Status),
		ExpiresAt: b.ExpiresAt,
		CreatedAt: b.CreatedAt,
	}
}

// toItemResponse はドメインのアイテムをレスポンス型に変換する。
func toItemResponse(item *model.OutreachItem) itemResponse {
	return itemResponse{
		ID:            item.ID,
		BatchID:       item.BatchID,
		ContactID:     item.ContactID,
		CompanyID:     item.CompanyID,
		Position:      item.Position,
		EmailSubject:  item.EmailSubject,
		EmailBody:     item.EmailBody,
		EmailTone:     item.EmailTone,
		EditedContent: item.EditedContent,
		Status:        string(item.Status),
		SentAt:        item.SentAt,
	}
}
