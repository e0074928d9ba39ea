package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jononovo/sendclaw/internal/model"
)

// PostgresContactRepo はPostgreSQLを使用したコンタクトリポジトリ。
// コンタクトデータの投入は検索/エンリッチメント側で行うため読み取り専用。
type PostgresContactRepo struct {
	db *sql.DB
}

// NewPostgresContactRepo はPostgresContactRepoを生成する。
func NewPostgresContactRepo(db *sql.DB) *PostgresContactRepo {
	return &PostgresContactRepo{db: db}
}

// ListEligible はバッチ生成の候補コンタクトをprobability_score降順で返す。
// 除外条件: メールアドレス未解決、またはルックバック期間内に作成された
// 非失効バッチのアイテムに既に含まれているコンタクト
// （同じ相手への連日の再ピッチを防ぐ）。
func (r *PostgresContactRepo) ListEligible(ctx context.Context, userID string, lookbackDays, limit int) ([]model.ContactWithCompany, error) {
	interval := fmt.Sprintf("%d days", lookbackDays)

	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.user_id, c.company_id, c.first_name, c.last_name,
		        c.email, c.title, c.probability_score, c.created_at, c.updated_at,
		        co.name, co.domain, co.industry
		 FROM contacts c
		 JOIN companies co ON co.id = c.company_id
		 WHERE c.user_id = $1
		   AND c.email <> ''
		   AND NOT EXISTS (
		       SELECT 1
		       FROM outreach_items oi
		       JOIN outreach_batches ob ON ob.id = oi.batch_id
		       WHERE oi.contact_id = c.id
		         AND ob.status <> 'expired'
		         AND ob.created_at > now() - $2::interval
		   )
		 ORDER BY c.probability_score DESC, c.created_at ASC
		 LIMIT $3`,
		userID, interval, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("候補コンタクトの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var contacts []model.ContactWithCompany
	for rows.Next() {
		var c model.ContactWithCompany
		err := rows.Scan(
			&c.ID, &c.UserID, &c.CompanyID, &c.FirstName, &c.LastName,
			&c.Email, &c.Title, &c.ProbabilityScore, &c.CreatedAt, &c.UpdatedAt,
			&c.CompanyName, &c.CompanyDomain, &c.CompanyIndustry,
		)
		if err != nil {
			return nil, fmt.Errorf("コンタクトのスキャンに失敗しました: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("候補コンタクトの読み取りに失敗しました: %w", err)
	}

	return contacts, nil
}

// ListByBatch は指定バッチのアイテムが参照するコンタクトを企業情報付きで返す。
// マージフィールド（{first_name}等）の解決に使用する。
func (r *PostgresContactRepo) ListByBatch(ctx context.Context, batchID string) ([]model.ContactWithCompany, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.user_id, c.company_id, c.first_name, c.last_name,
		        c.email, c.title, c.probability_score, c.created_at, c.updated_at,
		        co.name, co.domain, co.industry
		 FROM outreach_items oi
		 JOIN contacts c ON c.id = oi.contact_id
		 JOIN companies co ON co.id = c.company_id
		 WHERE oi.batch_id = $1
		 ORDER BY oi.position ASC`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("バッチのコンタクト取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var contacts []model.ContactWithCompany
	for rows.Next() {
		var c model.ContactWithCompany
		err := rows.Scan(
			&c.ID, &c.UserID, &c.CompanyID, &c.FirstName, &c.LastName,
			&c.Email, &c.Title, &c.ProbabilityScore, &c.CreatedAt, &c.UpdatedAt,
			&c.CompanyName, &c.CompanyDomain, &c.CompanyIndustry,
		)
		if err != nil {
			return nil, fmt.Errorf("コンタクトのスキャンに失敗しました: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("バッチのコンタクト読み取りに失敗しました: %w", err)
	}

	return contacts, nil
}

// compile-time interface check
var _ ContactRepository = (*PostgresContactRepo)(nil)
