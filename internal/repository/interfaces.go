// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jononovo/sendclaw/internal/model"
)

// ErrDuplicateActiveBatch は同一(user_id, batch_date)のアクティブバッチが
// 既に存在する場合にCreateWithItemsが返すエラー。
// 呼び出し元は既存バッチを再取得して返すこと（冪等な生成のため）。
var ErrDuplicateActiveBatch = errors.New("active batch already exists for user and date")

// BatchRepository はアウトリーチバッチの永続化インターフェース。
type BatchRepository interface {
	// FindActiveByUserAndDate は指定ユーザー・日付のアクティブまたは完了済み
	// バッチを取得する。見つからない場合はnilを返す。
	// 冪等な生成判定に使用するため、失効済みバッチは対象外。
	FindActiveByUserAndDate(ctx context.Context, userID string, date time.Time) (*model.OutreachBatch, error)

	// FindByToken はセキュアトークンでバッチを検索する。見つからない場合はnilを返す。
	// 失効済みバッチも返す（呼び出し元が失効判定を行う）。
	FindByToken(ctx context.Context, token string) (*model.OutreachBatch, error)

	// FindByID は指定IDのバッチを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.OutreachBatch, error)

	// CreateWithItems はバッチとアイテム群を同一トランザクションで作成する。
	// アクティブバッチの部分ユニーク制約に違反した場合はErrDuplicateActiveBatchを返す。
	CreateWithItems(ctx context.Context, batch *model.OutreachBatch, items []*model.OutreachItem) error

	// UpdateStatus はバッチの状態を更新する。
	UpdateStatus(ctx context.Context, batchID string, status model.BatchStatus) error

	// ExpireOverdue はexpires_atを過ぎたアクティブバッチを失効させ、件数を返す。
	// 冪等: 対象がない場合は0件で正常終了する。
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// OutreachItemRepository はアウトリーチアイテムの永続化インターフェース。
// 状態遷移は条件付きUPDATE（status = 'pending'ガード）で表現し、
// 並行する二重遷移をデータベースレベルで防ぐ。
type OutreachItemRepository interface {
	// ListByBatch はバッチのアイテム一覧をposition昇順（挿入順）で返す。
	ListByBatch(ctx context.Context, batchID string) ([]model.OutreachItem, error)

	// FindByBatchAndID はバッチIDとアイテムIDでアイテムを取得する。
	// 見つからない場合はnilを返す。
	FindByBatchAndID(ctx context.Context, batchID, itemID string) (*model.OutreachItem, error)

	// UpdateContent はpending状態のアイテムの件名・本文を上書きする。
	// アイテムがpendingでない場合はnilを返す（遷移は発生しない）。
	UpdateContent(ctx context.Context, itemID, subject, body string, edited *string) (*model.OutreachItem, error)

	// MarkSent はpending状態のアイテムをsentに遷移させ、sent_atを設定する。
	// アイテムがpendingでない場合はnilを返す。
	MarkSent(ctx context.Context, itemID string, sentAt time.Time) (*model.OutreachItem, error)

	// MarkSkipped はpending状態のアイテムをskippedに遷移させる。
	// アイテムがpendingでない場合はnilを返す。
	MarkSkipped(ctx context.Context, itemID string) (*model.OutreachItem, error)

	// CountPendingByBatch はバッチ内のpendingアイテム数を返す。
	// 完了状態の再計算に使用する。
	CountPendingByBatch(ctx context.Context, batchID string) (int, error)
}

// ContactRepository はコンタクトデータの読み取りインターフェース。
// コンタクトの投入・更新は検索/エンリッチメント側が行うため読み取り専用。
type ContactRepository interface {
	// ListEligible はバッチ生成の候補コンタクトを返す。
	// 条件: メールアドレスが解決済み、かつルックバック期間内の
	// 非失効バッチのアイテムに含まれていないこと。
	// probability_score降順でlimit件まで返す。
	ListEligible(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error)
	// ListByBatch は指定バッチのアイテムが参照するコンタクトを企業情報付きで返す。
	// レスポンス生成時のマージフィールド解決に使用する。
	ListByBatch(ctx context.Context, batchID string) ([]model.ContactWithCompany, error)
}

// PreferencesRepository はアウトリーチ設定の永続化インターフェース。
type PreferencesRepository interface {
	// FindByUserID は指定ユーザーの設定を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.OutreachPreferences, error)

	// Upsert は設定を冪等にUPSERTする。
	Upsert(ctx context.Context, prefs *model.OutreachPreferences) error

	// UpdateVacation は休暇設定のみを更新する。
	UpdateVacation(ctx context.Context, userID string, mode bool, start, end *time.Time) error

	// ListEnabled は有効化されている全ユーザーの設定を返す。
	// 生成ワーカーのスケジュール判定に使用する。
	ListEnabled(ctx context.Context) ([]*model.OutreachPreferences, error)
}

// StatsRepository は統計集計用の読み取りインターフェース。
// ウィンドウのフィルタリングはSQL側で行い、全行のメモリスキャンを避ける。
type StatsRepository interface {
	// ListSentDays は送信実績のあるカレンダー日（ユーザーのタイムゾーン基準、
	// 重複なし）を新しい順で返す。ストリーク計算に使用する。
	ListSentDays(ctx context.Context, userID, timezone string) ([]time.Time, error)

	// CountSentInWindow はsinceから現在までの送信数と接触企業数を返す。
	// sinceがnilの場合は全期間を対象とする。
	CountSentInWindow(ctx context.Context, userID string, since *time.Time) (model.WindowCounts, error)
}

// SessionRepository はセッションデータの読み取りインターフェース。
// セッションの発行は認証側（外部）が行うため、ここでは検証のみ。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// UserRepository はユーザーデータの読み取りインターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
