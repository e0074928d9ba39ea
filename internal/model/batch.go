// Package model はドメインモデルを定義する。
package model

import "time"

// OutreachBatch は1ユーザー・1日分のアウトリーチバッチを表す。
// (user_id, batch_date) の組でアクティブなバッチは最大1つに制限される。
// 統計の履歴として利用するため、バッチは削除されない。
type OutreachBatch struct {
	ID          string
	UserID      string
	BatchDate   time.Time // カレンダー日付（時刻部分は常に00:00:00 UTC）
	SecureToken string    // ログイン不要のリンクアクセス用の推測不能トークン
	Status      BatchStatus
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BatchStatus はバッチのライフサイクル状態を表す。
type BatchStatus string

const (
	// BatchStatusActive は処理中のバッチ状態。
	BatchStatusActive BatchStatus = "active"
	// BatchStatusCompleted は全アイテムがpendingを離れた完了状態。
	BatchStatusCompleted BatchStatus = "completed"
	// BatchStatusExpired はTTL超過による失効状態。
	BatchStatusExpired BatchStatus = "expired"
)

// IsExpiredAt はバッチが指定時刻で失効しているかを返す。
// statusが既にexpiredの場合、またはexpires_atを過ぎている場合にtrueを返す。
func (b *OutreachBatch) IsExpiredAt(now time.Time) bool {
	return b.Status == BatchStatusExpired || now.After(b.ExpiresAt)
}

// OutreachItem はバッチ内の1件のコンタクト+生成メールの組を表す。
// 各アイテムは独立に状態遷移し、一度pendingを離れたら戻らない（単調性）。
type OutreachItem struct {
	ID            string
	BatchID       string
	ContactID     string
	CompanyID     string
	Position      int // バッチ作成時の挿入順。ナビゲーションの安定した並び順として永続化する。
	EmailSubject  string
	EmailBody     string // サニタイズ済みHTML。未解決のマージフィールドを含みうる。
	EmailTone     string
	EditedContent *string // ユーザーが内容を編集した場合に記録される
	Status        ItemStatus
	SentAt        *time.Time // status == sent のときのみ非nil
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ItemStatus はアイテムのライフサイクル状態を表す。
type ItemStatus string

const (
	// ItemStatusPending は未処理の初期状態。
	ItemStatusPending ItemStatus = "pending"
	// ItemStatusSent は送信済み状態。
	ItemStatusSent ItemStatus = "sent"
	// ItemStatusSkipped はスキップされた状態。
	ItemStatusSkipped ItemStatus = "skipped"
	// ItemStatusEdited は編集済み状態。
	// 内容の編集だけではこの状態に遷移しない（編集中もpendingを維持する）。
	ItemStatusEdited ItemStatus = "edited"
)
