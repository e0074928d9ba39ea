// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, outreach, generation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeBatchNotFound      = "BATCH_NOT_FOUND"
	ErrCodeBatchExpired       = "BATCH_EXPIRED"
	ErrCodeItemNotFound       = "ITEM_NOT_FOUND"
	ErrCodeInvalidItemState   = "INVALID_ITEM_STATE"
	ErrCodeInvalidPreferences = "INVALID_PREFERENCES"
	ErrCodeComposeFailed      = "COMPOSE_FAILED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
)

// NewBatchNotFoundError は未知のトークンに対するエラーを生成する。
// リンクが失効した場合（BATCH_EXPIRED）とは別のメッセージを返す。
// UI側で「リンクが存在しない」ことを案内するために区別が必要。
func NewBatchNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeBatchNotFound,
		Message:  "指定されたアウトリーチバッチが見つかりません。",
		Category: "outreach",
		Action:   "リンクのURLが正しいか確認してください。",
	}
}

// NewBatchExpiredError はTTLを過ぎたバッチへのアクセスエラーを生成する。
func NewBatchExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeBatchExpired,
		Message:  "このアウトリーチバッチは有効期限が切れています。",
		Category: "outreach",
		Action:   "新しいバッチを生成してください。過去の実績はダッシュボードから確認できます。",
	}
}

// NewItemNotFoundError はアイテム未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定されたアイテムが見つかりません: %s", itemID),
		Category: "outreach",
		Action:   "アイテムIDを確認してください。",
	}
}

// NewInvalidItemStateError は許可されない状態遷移のエラーを生成する。
// アイテムの状態は単調で、pendingを離れた後の再遷移は拒否される。
func NewInvalidItemStateError(current ItemStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidItemState,
		Message:  fmt.Sprintf("現在の状態からは操作できません: %s", current),
		Category: "outreach",
		Action:   "バッチを再取得して最新の状態を確認してください。",
	}
}

// NewInvalidPreferencesError は設定値のバリデーションエラーを生成する。
func NewInvalidPreferencesError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPreferences,
		Message:  fmt.Sprintf("無効なアウトリーチ設定です: %s", reason),
		Category: "validation",
		Action:   "設定値を確認してください。",
	}
}

// NewComposeFailedError はメール生成APIの呼び出し失敗エラーを生成する。
func NewComposeFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeComposeFailed,
		Message:  fmt.Sprintf("メール内容の生成に失敗しました: %s", reason),
		Category: "generation",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
