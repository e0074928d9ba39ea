package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jononovo/sendclaw/internal/model"
)

// PostgresOutreachItemRepo はPostgreSQLを使用したアイテムリポジトリ。
type PostgresOutreachItemRepo struct {
	db *sql.DB
}

// NewPostgresOutreachItemRepo はPostgresOutreachItemRepoを生成する。
func NewPostgresOutreachItemRepo(db *sql.DB) *PostgresOutreachItemRepo {
	return &PostgresOutreachItemRepo{db: db}
}

const itemColumns = `id, batch_id, contact_id, company_id, position,
	 email_subject, email_body, email_tone, edited_content, status, sent_at, created_at, updated_at`

// scanItem は1行分のアイテムをスキャンする。
func scanItem(scanner interface{ Scan(...any) error }) (*model.OutreachItem, error) {
	item := &model.OutreachItem{}
	var edited sql.NullString
	var sentAt sql.NullTime

	err := scanner.Scan(
		&item.ID, &item.BatchID, &item.ContactID, &item.CompanyID, &item.Position,
		&item.EmailSubject, &item.EmailBody, &item.EmailTone,
		&edited, &item.Status, &sentAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if edited.Valid {
		item.EditedContent = &edited.String
	}
	if sentAt.Valid {
		item.SentAt = &sentAt.Time
	}
	return item, nil
}

// ListByBatch はバッチのアイテム一覧をposition昇順（挿入順）で返す。
// クライアントのインデックスベースのナビゲーションが再取得をまたいで
// 一貫するよう、並び順は永続化されたpositionに固定する。
func (r *PostgresOutreachItemRepo) ListByBatch(ctx context.Context, batchID string) ([]model.OutreachItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM outreach_items WHERE batch_id = $1 ORDER BY position ASC`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("アイテム一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []model.OutreachItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("アイテムのスキャンに失敗しました: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アイテム一覧の読み取りに失敗しました: %w", err)
	}

	return items, nil
}

// FindByBatchAndID はバッチIDとアイテムIDでアイテムを取得する。見つからない場合はnilを返す。
// バッチIDを常に条件に含め、トークン外のアイテムへのアクセスを遮断する。
func (r *PostgresOutreachItemRepo) FindByBatchAndID(ctx context.Context, batchID, itemID string) (*model.OutreachItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM outreach_items WHERE batch_id = $1 AND id = $2`,
		batchID, itemID,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	return item, nil
}

// UpdateContent はpending状態のアイテムの件名・本文を上書きする。
// statusガード付きの条件付きUPDATE。アイテムがpendingでない場合はnilを返す。
// editedがnilの場合（件名のみの編集）は既存のedited_contentを維持する。
func (r *PostgresOutreachItemRepo) UpdateContent(ctx context.Context, itemID, subject, body string, edited *string) (*model.OutreachItem, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE outreach_items
		 SET email_subject = $2, email_body = $3,
		     edited_content = COALESCE($4, edited_content), updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+itemColumns,
		itemID, subject, body, edited,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイテム内容の更新に失敗しました: %w", err)
	}
	return item, nil
}

// MarkSent はpending状態のアイテムをsentに遷移させ、sent_atを設定する。
// アイテムがpendingでない場合はnilを返す（呼び出し元が現状態から冪等性を判定する）。
func (r *PostgresOutreachItemRepo) MarkSent(ctx context.Context, itemID string, sentAt time.Time) (*model.OutreachItem, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE outreach_items
		 SET status = 'sent', sent_at = $2, updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+itemColumns,
		itemID, sentAt,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイテムの送信済み遷移に失敗しました: %w", err)
	}
	return item, nil
}

// MarkSkipped はpending状態のアイテムをskippedに遷移させる。
// アイテムがpendingでない場合はnilを返す。
func (r *PostgresOutreachItemRepo) MarkSkipped(ctx context.Context, itemID string) (*model.OutreachItem, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE outreach_items
		 SET status = 'skipped', updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+itemColumns,
		itemID,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイテムのスキップ遷移に失敗しました: %w", err)
	}
	return item, nil
}

// CountPendingByBatch はバッチ内のpendingアイテム数を返す。
// 完了状態は渡されたフラグではなく、この再計算の結果のみから導出する。
func (r *PostgresOutreachItemRepo) CountPendingByBatch(ctx context.Context, batchID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outreach_items WHERE batch_id = $1 AND status = 'pending'`,
		batchID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pendingアイテム数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ OutreachItemRepository = (*PostgresOutreachItemRepo)(nil)
