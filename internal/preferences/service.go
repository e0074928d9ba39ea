// Package preferences はアウトリーチ設定の管理機能を提供する。
// バッチ生成・統計側は設定を読むだけで、更新はこのパッケージ経由で行う。
package preferences

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jononovo/sendclaw/internal/model"
	"github.com/jononovo/sendclaw/internal/repository"
)

// validWeekdays は有効な曜日名のセット（小文字）。
var validWeekdays = map[string]bool{
	"monday":    true,
	"tuesday":   true,
	"wednesday": true,
	"thursday":  true,
	"friday":    true,
	"saturday":  true,
	"sunday":    true,
}

// PreferencesService はアウトリーチ設定のサービス。
type PreferencesService struct {
	prefsRepo repository.PreferencesRepository
	userRepo  repository.UserRepository
	logger    *slog.Logger
}

// NewPreferencesService はPreferencesServiceの新しいインスタンスを生成する。
func NewPreferencesService(
	prefsRepo repository.PreferencesRepository,
	userRepo repository.UserRepository,
	logger *slog.Logger,
) *PreferencesService {
	return &PreferencesService{
		prefsRepo: prefsRepo,
		userRepo:  userRepo,
		logger:    logger,
	}
}

// Get は指定ユーザーの設定を取得する。未設定の場合はnilを返す。
func (s *PreferencesService) Get(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
	return s.prefsRepo.FindByUserID(ctx, userID)
}

// Update は設定をバリデーションして保存する。
// 不正な値はINVALID_PREFERENCES、存在しないユーザーはUSER_NOT_FOUNDを返す。
func (s *PreferencesService) Update(ctx context.Context, prefs *model.OutreachPreferences) (*model.OutreachPreferences, error) {
	if err := validate(prefs); err != nil {
		return nil, err
	}

	// UPSERTのため、未知のユーザーIDで行が作られないように先に存在確認する
	user, err := s.userRepo.FindByID(ctx, prefs.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if err := s.prefsRepo.Upsert(ctx, prefs); err != nil {
		return nil, err
	}

	s.logger.Info("アウトリーチ設定を更新しました",
		slog.String("user_id", prefs.UserID),
		slog.Bool("enabled", prefs.Enabled),
	)

	return s.prefsRepo.FindByUserID(ctx, prefs.UserID)
}

// SetVacation は休暇設定のみを更新する。
// 期間を指定する場合は開始日が終了日以前であること。
func (s *PreferencesService) SetVacation(ctx context.Context, userID string, mode bool, start, end *time.Time) error {
	if mode && start != nil && end != nil && start.After(*end) {
		return model.NewInvalidPreferencesError("休暇の開始日は終了日以前である必要があります")
	}
	if mode && (start == nil) != (end == nil) {
		return model.NewInvalidPreferencesError("休暇期間は開始日と終了日の両方を指定してください")
	}

	if err := s.prefsRepo.UpdateVacation(ctx, userID, mode, start, end); err != nil {
		return err
	}

	s.logger.Info("休暇設定を更新しました",
		slog.String("user_id", userID),
		slog.Bool("vacation_mode", mode),
	)
	return nil
}

// validate は設定値を検証する。
func validate(prefs *model.OutreachPreferences) error {
	if prefs.UserID == "" {
		return model.NewInvalidPreferencesError("ユーザーIDが未指定です")
	}

	for _, d := range prefs.ScheduleDays {
		if !validWeekdays[d] {
			return model.NewInvalidPreferencesError(fmt.Sprintf("無効な曜日名です: %s", d))
		}
	}

	if prefs.ScheduleTime != "" {
		if _, err := time.Parse("15:04", prefs.ScheduleTime); err != nil {
			return model.NewInvalidPreferencesError(fmt.Sprintf("送信時刻はHH:MM形式で指定してください: %s", prefs.ScheduleTime))
		}
	}

	if prefs.Timezone != "" {
		if _, err := time.LoadLocation(prefs.Timezone); err != nil {
			return model.NewInvalidPreferencesError(fmt.Sprintf("無効なタイムゾーンです: %s", prefs.Timezone))
		}
	}

	if prefs.MinContactsRequired < 0 {
		return model.NewInvalidPreferencesError("バッチサイズは0以上で指定してください")
	}

	if prefs.VacationStartDate != nil && prefs.VacationEndDate != nil &&
		prefs.VacationStartDate.After(*prefs.VacationEndDate) {
		return model.NewInvalidPreferencesError("休暇の開始日は終了日以前である必要があります")
	}

	return nil
}
