package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jononovo/sendclaw/internal/model"
)

// PostgresBatchRepo はPostgreSQLを使用したバッチリポジトリ。
type PostgresBatchRepo struct {
	db *sql.DB
}

// NewPostgresBatchRepo はPostgresBatchRepoを生成する。
func NewPostgresBatchRepo(db *sql.DB) *PostgresBatchRepo {
	return &PostgresBatchRepo{db: db}
}

const batchColumns = `id, user_id, batch_date, secure_token, status, expires_at, created_at, updated_at`

// scanBatch は1行分のバッチをスキャンする。
func scanBatch(row *sql.Row) (*model.OutreachBatch, error) {
	batch := &model.OutreachBatch{}
	err := row.Scan(
		&batch.ID, &batch.UserID, &batch.BatchDate, &batch.SecureToken,
		&batch.Status, &batch.ExpiresAt, &batch.CreatedAt, &batch.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("バッチの取得に失敗しました: %w", err)
	}
	return batch, nil
}

// FindActiveByUserAndDate は指定ユーザー・日付のアクティブまたは完了済みバッチを取得する。
// 失効済みバッチは対象外（再生成後の旧バッチを返さないため）。
func (r *PostgresBatchRepo) FindActiveByUserAndDate(ctx context.Context, userID string, date time.Time) (*model.OutreachBatch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+`
		 FROM outreach_batches
		 WHERE user_id = $1 AND batch_date = $2 AND status <> 'expired'
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, date,
	)
	return scanBatch(row)
}

// FindByToken はセキュアトークンでバッチを検索する。見つからない場合はnilを返す。
func (r *PostgresBatchRepo) FindByToken(ctx context.Context, token string) (*model.OutreachBatch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM outreach_batches WHERE secure_token = $1`,
		token,
	)
	return scanBatch(row)
}

// FindByID は指定IDのバッチを取得する。見つからない場合はnilを返す。
func (r *PostgresBatchRepo) FindByID(ctx context.Context, id string) (*model.OutreachBatch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM outreach_batches WHERE id = $1`,
		id,
	)
	return scanBatch(row)
}

// CreateWithItems はバッチとアイテム群を同一トランザクションで作成する。
// idx_outreach_batches_active_unique（部分ユニークインデックス）への違反は
// ErrDuplicateActiveBatchとして返し、呼び出し元の再取得を促す。
// ユニーク制約によるシリアライズであり、アプリケーションレベルのロックは使わない。
func (r *PostgresBatchRepo) CreateWithItems(ctx context.Context, batch *model.OutreachBatch, items []*model.OutreachItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outreach_batches (id, user_id, batch_date, secure_token, status, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		batch.ID, batch.UserID, batch.BatchDate, batch.SecureToken,
		batch.Status, batch.ExpiresAt, batch.CreatedAt, batch.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActiveBatch
		}
		return fmt.Errorf("バッチの作成に失敗しました: %w", err)
	}

	for _, item := range items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO outreach_items
			     (id, batch_id, contact_id, company_id, position,
			      email_subject, email_body, email_tone, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			item.ID, item.BatchID, item.ContactID, item.CompanyID, item.Position,
			item.EmailSubject, item.EmailBody, item.EmailTone, item.Status,
			item.CreatedAt, item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("アイテムの作成に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return nil
}

// UpdateStatus はバッチの状態を更新する。
func (r *PostgresBatchRepo) UpdateStatus(ctx context.Context, batchID string, status model.BatchStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outreach_batches SET status = $2, updated_at = now() WHERE id = $1`,
		batchID, status,
	)
	if err != nil {
		return fmt.Errorf("バッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// ExpireOverdue はexpires_atを過ぎたアクティブバッチを失効させ、件数を返す。
func (r *PostgresBatchRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE outreach_batches
		 SET status = 'expired', updated_at = now()
		 WHERE status = 'active' AND expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("バッチの失効処理に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// isUniqueViolation はPostgreSQLのユニーク制約違反（SQLSTATE 23505）かを判定する。
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// compile-time interface check
var _ BatchRepository = (*PostgresBatchRepo)(nil)
