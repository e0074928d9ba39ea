package preferences

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jononovo/sendclaw/internal/model"
)

// --- モック ---

type mockPrefsRepo struct {
	findByUserIDFn   func(ctx context.Context, userID string) (*model.OutreachPreferences, error)
	upsertFn         func(ctx context.Context, prefs *model.OutreachPreferences) error
	updateVacationFn func(ctx context.Context, userID string, mode bool, start, end *time.Time) error
}

func (m *mockPrefsRepo) FindByUserID(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, nil
}
func (m *mockPrefsRepo) Upsert(ctx context.Context, prefs *model.OutreachPreferences) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, prefs)
	}
	return nil
}
func (m *mockPrefsRepo) UpdateVacation(ctx context.Context, userID string, mode bool, start, end *time.Time) error {
	if m.updateVacationFn != nil {
		return m.updateVacationFn(ctx, userID, mode, start, end)
	}
	return nil
}
func (m *mockPrefsRepo) ListEnabled(ctx context.Context) ([]*model.OutreachPreferences, error) {
	return nil, nil
}

// mockUserRepo はデフォルトで存在するユーザーを返す。
type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &model.User{ID: id}, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func validPrefs() *model.OutreachPreferences {
	return &model.OutreachPreferences{
		UserID:              "user-1",
		Enabled:             true,
		ScheduleDays:        []string{"monday", "wednesday", "friday"},
		ScheduleTime:        "09:30",
		Timezone:            "Asia/Tokyo",
		MinContactsRequired: 5,
	}
}

func assertInvalidPreferences(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("INVALID_PREFERENCES エラーが返されるべき")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIError であるべき: got %T (%v)", err, err)
	}
	if apiErr.Code != model.ErrCodeInvalidPreferences {
		t.Fatalf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidPreferences)
	}
}

// TestUpdate_ValidPreferences は有効な設定が保存されることを検証する。
func TestUpdate_ValidPreferences(t *testing.T) {
	upserted := false
	repo := &mockPrefsRepo{
		upsertFn: func(ctx context.Context, prefs *model.OutreachPreferences) error {
			upserted = true
			return nil
		},
		findByUserIDFn: func(ctx context.Context, userID string) (*model.OutreachPreferences, error) {
			return validPrefs(), nil
		},
	}

	s := NewPreferencesService(repo, &mockUserRepo{}, newTestLogger())

	saved, err := s.Update(context.Background(), validPrefs())
	if err != nil {
		t.Fatalf("Update がエラーを返した: %v", err)
	}
	if !upserted {
		t.Error("設定が保存されるべき")
	}
	if saved == nil || saved.UserID != "user-1" {
		t.Errorf("保存後の設定が返されるべき: %+v", saved)
	}
}

// TestUpdate_InvalidValues は不正な設定値の拒否を検証する。
func TestUpdate_InvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *model.OutreachPreferences)
	}{
		{
			name:   "無効な曜日名",
			modify: func(p *model.OutreachPreferences) { p.ScheduleDays = []string{"monday", "funday"} },
		},
		{
			name:   "大文字の曜日名",
			modify: func(p *model.OutreachPreferences) { p.ScheduleDays = []string{"Monday"} },
		},
		{
			name:   "不正な時刻形式",
			modify: func(p *model.OutreachPreferences) { p.ScheduleTime = "9時30分" },
		},
		{
			name:   "範囲外の時刻",
			modify: func(p *model.OutreachPreferences) { p.ScheduleTime = "25:00" },
		},
		{
			name:   "無効なタイムゾーン",
			modify: func(p *model.OutreachPreferences) { p.Timezone = "Mars/Olympus" },
		},
		{
			name:   "負のバッチサイズ",
			modify: func(p *model.OutreachPreferences) { p.MinContactsRequired = -1 },
		},
		{
			name: "休暇の開始日が終了日より後",
			modify: func(p *model.OutreachPreferences) {
				start := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
				end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
				p.VacationStartDate = &start
				p.VacationEndDate = &end
			},
		},
		{
			name:   "ユーザーID未指定",
			modify: func(p *model.OutreachPreferences) { p.UserID = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockPrefsRepo{
				upsertFn: func(ctx context.Context, prefs *model.OutreachPreferences) error {
					t.Error("不正な設定は保存してはならない")
					return nil
				},
			}

			s := NewPreferencesService(repo, &mockUserRepo{}, newTestLogger())

			prefs := validPrefs()
			tt.modify(prefs)

			_, err := s.Update(context.Background(), prefs)
			assertInvalidPreferences(t, err)
		})
	}
}

// TestUpdate_UnknownUser は存在しないユーザーの設定を保存しないことを検証する。
func TestUpdate_UnknownUser(t *testing.T) {
	repo := &mockPrefsRepo{
		upsertFn: func(ctx context.Context, prefs *model.OutreachPreferences) error {
			t.Error("存在しないユーザーの設定は保存してはならない")
			return nil
		},
	}
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}

	s := NewPreferencesService(repo, users, newTestLogger())

	_, err := s.Update(context.Background(), validPrefs())
	if err == nil {
		t.Fatal("USER_NOT_FOUND エラーが返されるべき")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIError であるべき: got %T (%v)", err, err)
	}
	if apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("Code = %q, want %q", apiErr.Code, model.ErrCodeUserNotFound)
	}
}

// TestUpdate_EmptyOptionalFields は任意フィールドが空でも保存できることを検証する。
func TestUpdate_EmptyOptionalFields(t *testing.T) {
	repo := &mockPrefsRepo{}
	s := NewPreferencesService(repo, &mockUserRepo{}, newTestLogger())

	prefs := &model.OutreachPreferences{UserID: "user-1"}
	if _, err := s.Update(context.Background(), prefs); err != nil {
		t.Fatalf("空の任意フィールドはエラーではない: %v", err)
	}
}

// TestSetVacation_Valid は休暇設定の更新を検証する。
func TestSetVacation_Valid(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)

	var gotMode bool
	repo := &mockPrefsRepo{
		updateVacationFn: func(ctx context.Context, userID string, mode bool, s2, e2 *time.Time) error {
			gotMode = mode
			return nil
		},
	}

	s := NewPreferencesService(repo, &mockUserRepo{}, newTestLogger())

	if err := s.SetVacation(context.Background(), "user-1", true, &start, &end); err != nil {
		t.Fatalf("SetVacation がエラーを返した: %v", err)
	}
	if !gotMode {
		t.Error("mode = false, want true")
	}
}

// TestSetVacation_InvalidRange は開始日が終了日より後の場合の拒否を検証する。
func TestSetVacation_InvalidRange(t *testing.T) {
	start := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	s := NewPreferencesService(&mockPrefsRepo{}, &mockUserRepo{}, newTestLogger())

	err := s.SetVacation(context.Background(), "user-1", true, &start, &end)
	assertInvalidPreferences(t, err)
}

// TestSetVacation_PartialRange は開始日のみ・終了日のみの指定を拒否することを検証する。
func TestSetVacation_PartialRange(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	s := NewPreferencesService(&mockPrefsRepo{}, &mockUserRepo{}, newTestLogger())

	err := s.SetVacation(context.Background(), "user-1", true, &start, nil)
	assertInvalidPreferences(t, err)
}

// TestSetVacation_DisableIgnoresRange は休暇モード解除時に期間を検証しないことを検証する。
func TestSetVacation_DisableIgnoresRange(t *testing.T) {
	s := NewPreferencesService(&mockPrefsRepo{}, &mockUserRepo{}, newTestLogger())

	if err := s.SetVacation(context.Background(), "user-1", false, nil, nil); err != nil {
		t.Fatalf("休暇モード解除はエラーではない: %v", err)
	}
}
