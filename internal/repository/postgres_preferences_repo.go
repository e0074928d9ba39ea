package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jononovo/sendclaw/internal/model"
)

// PostgresPreferencesRepo はPostgreSQLを使用したアウトリーチ設定リポジトリ。
type PostgresPreferencesRepo struct {
	db *sql.DB
}

// NewPostgresPreferencesRepo はPostgresPreferencesRepoを生成する。
func NewPostgresPreferencesRepo(db *sql.DB) *PostgresPreferencesRepo {
	return &PostgresPreferencesRepo{db: db}
}

const preferencesColumns = `user_id, enabled, schedule_days, schedule_time, timezone,
	 min_contacts_required, vacation_mode, vacation_start_date, vacation_end_date,
	 active_product_id, active_sender_profile_id, active_customer_profile_id,
	 created_at, updated_at`

// scanPreferences は1行分の設定をスキャンする。
func scanPreferences(scanner interface{ Scan(...any) error }) (*model.OutreachPreferences, error) {
	prefs := &model.OutreachPreferences{}
	var vacStart, vacEnd sql.NullTime
	var productID, senderID, customerID sql.NullString

	err := scanner.Scan(
		&prefs.UserID, &prefs.Enabled, pq.Array(&prefs.ScheduleDays),
		&prefs.ScheduleTime, &prefs.Timezone, &prefs.MinContactsRequired,
		&prefs.VacationMode, &vacStart, &vacEnd,
		&productID, &senderID, &customerID,
		&prefs.CreatedAt, &prefs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if vacStart.Valid {
		prefs.VacationStartDate = &vacStart.Time
	}
	if vacEnd.Valid {
		prefs.VacationEndDate = &vacEnd.Time
	}
	if productID.Valid {
		prefs.ActiveProductID = &productID.String
	}
	if senderID.Valid {
		prefs.ActiveSenderProfileID = &senderID.String
	}
	if customerID.Valid {
		prefs.ActiveCustomerProfileID = &customerID.String
	}
	return prefs, nil
}

// FindByUserID は指定ユーザーの設定を取得する。見つからない場合はnilを返す。
func (r *PostgresPreferencesRepo) FindByUserID(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+preferencesColumns+` FROM outreach_preferences WHERE user_id = $1`,
		userID,
	)
	prefs, err := scanPreferences(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アウトリーチ設定の取得に失敗しました: %w", err)
	}
	return prefs, nil
}

// Upsert は設定を冪等にUPSERTする。
// user_idの主キー制約を利用したINSERT ON CONFLICTで実装する。
func (r *PostgresPreferencesRepo) Upsert(ctx context.Context, prefs *model.OutreachPreferences) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO outreach_preferences
		     (user_id, enabled, schedule_days, schedule_time, timezone,
		      min_contacts_required, vacation_mode, vacation_start_date, vacation_end_date,
		      active_product_id, active_sender_profile_id, active_customer_profile_id,
		      created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		 ON CONFLICT (user_id) DO UPDATE SET
		     enabled = EXCLUDED.enabled,
		     schedule_days = EXCLUDED.schedule_days,
		     schedule_time = EXCLUDED.schedule_time,
		     timezone = EXCLUDED.timezone,
		     min_contacts_required = EXCLUDED.min_contacts_required,
		     vacation_mode = EXCLUDED.vacation_mode,
		     vacation_start_date = EXCLUDED.vacation_start_date,
		     vacation_end_date = EXCLUDED.vacation_end_date,
		     active_product_id = EXCLUDED.active_product_id,
		     active_sender_profile_id = EXCLUDED.active_sender_profile_id,
		     active_customer_profile_id = EXCLUDED.active_customer_profile_id,
		     updated_at = now()`,
		prefs.UserID, prefs.Enabled, pq.Array(prefs.ScheduleDays),
		prefs.ScheduleTime, prefs.Timezone, prefs.MinContactsRequired,
		prefs.VacationMode, prefs.VacationStartDate, prefs.VacationEndDate,
		prefs.ActiveProductID, prefs.ActiveSenderProfileID, prefs.ActiveCustomerProfileID,
	)
	if err != nil {
		return fmt.Errorf("アウトリーチ設定の保存に失敗しました: %w", err)
	}
	return nil
}

// UpdateVacation は休暇設定のみを更新する。
func (r *PostgresPreferencesRepo) UpdateVacation(ctx context.Context, userID string, mode bool, start, end *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE outreach_preferences
		 SET vacation_mode = $2, vacation_start_date = $3, vacation_end_date = $4, updated_at = now()
		 WHERE user_id = $1`,
		userID, mode, start, end,
	)
	if err != nil {
		return fmt.Errorf("休暇設定の更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("休暇設定の更新結果の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return model.NewUserNotFoundError()
	}
	return nil
}

// ListEnabled は有効化されている全ユーザーの設定を返す。
func (r *PostgresPreferencesRepo) ListEnabled(ctx context.Context) ([]*model.OutreachPreferences, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+preferencesColumns+` FROM outreach_preferences WHERE enabled = true`,
	)
	if err != nil {
		return nil, fmt.Errorf("有効な設定一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var all []*model.OutreachPreferences
	for rows.Next() {
		prefs, err := scanPreferences(rows)
		if err != nil {
			return nil, fmt.Errorf("設定のスキャンに失敗しました: %w", err)
		}
		all = append(all, prefs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("設定一覧の読み取りに失敗しました: %w", err)
	}

	return all, nil
}

// compile-time interface check
var _ PreferencesRepository = (*PostgresPreferencesRepo)(nil)
