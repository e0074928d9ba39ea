package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jononovo/sendclaw/internal/model"
)

// PostgresStatsRepo はPostgreSQLを使用した統計集計リポジトリ。
// 書き込みは一切行わない。数年分の履歴でも効率的に動作するよう、
// ウィンドウのフィルタリングと日付の丸めはすべてSQL側で行う。
type PostgresStatsRepo struct {
	db *sql.DB
}

// NewPostgresStatsRepo はPostgresStatsRepoを生成する。
func NewPostgresStatsRepo(db *sql.DB) *PostgresStatsRepo {
	return &PostgresStatsRepo{db: db}
}

// ListSentDays は送信実績のあるカレンダー日（重複なし）を新しい順で返す。
// 日付の帰属はサーバーのUTCではなくユーザーのタイムゾーンで決める。
// 返される各要素は該当日の00:00:00 UTCを指すtime.Time。
func (r *PostgresStatsRepo) ListSentDays(ctx context.Context, userID, timezone string) ([]time.Time, error) {
	if timezone == "" {
		timezone = "UTC"
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT (oi.sent_at AT TIME ZONE $2)::date AS sent_day
		 FROM outreach_items oi
		 JOIN outreach_batches ob ON ob.id = oi.batch_id
		 WHERE ob.user_id = $1 AND oi.status = 'sent'
		 ORDER BY sent_day DESC`,
		userID, timezone,
	)
	if err != nil {
		return nil, fmt.Errorf("送信日一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("送信日のスキャンに失敗しました: %w", err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("送信日一覧の読み取りに失敗しました: %w", err)
	}

	return days, nil
}

// CountSentInWindow はsinceから現在までの送信数と接触企業数を返す。
// sinceがnilの場合は全期間を対象とする。履歴がない場合はゼロ値を返す。
func (r *PostgresStatsRepo) CountSentInWindow(ctx context.Context, userID string, since *time.Time) (model.WindowCounts, error) {
	var counts model.WindowCounts
	var sinceVal sql.NullTime
	if since != nil {
		sinceVal = sql.NullTime{Time: *since, Valid: true}
	}

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT oi.company_id)
		 FROM outreach_items oi
		 JOIN outreach_batches ob ON ob.id = oi.batch_id
		 WHERE ob.user_id = $1
		   AND oi.status = 'sent'
		   AND ($2::timestamptz IS NULL OR oi.sent_at >= $2)`,
		userID, sinceVal,
	).Scan(&counts.EmailsSent, &counts.CompaniesContacted)
	if err != nil {
		return model.WindowCounts{}, fmt.Errorf("送信実績の集計に失敗しました: %w", err)
	}

	return counts, nil
}

// compile-time interface check
var _ StatsRepository = (*PostgresStatsRepo)(nil)
