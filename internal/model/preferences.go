// Package model はドメインモデルを定義する。
package model

import "time"

// OutreachPreferences はユーザーごとのアウトリーチ設定を表す。
// バッチ生成側からは読み取り専用のコラボレーターとして扱う。
type OutreachPreferences struct {
	UserID              string
	Enabled             bool
	ScheduleDays        []string // 曜日名の集合（"monday"〜"sunday"、小文字）
	ScheduleTime        string   // "HH:MM" 形式のローカル時刻
	Timezone            string   // IANAタイムゾーン名（例: "Asia/Tokyo"）
	MinContactsRequired int      // 1日のバッチサイズ上限
	VacationMode        bool
	VacationStartDate   *time.Time // 休暇期間の開始日（両端含む）
	VacationEndDate     *time.Time
	// キャンペーンが有効であるためには3つすべての設定が必要。
	// いずれかが欠けている場合、生成はスキップされる。
	ActiveProductID         *string
	ActiveSenderProfileID   *string
	ActiveCustomerProfileID *string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// OnVacationAt は指定日が休暇期間 [start, end]（両端含む）に入っているかを返す。
// 休暇モードが無効、または期間が未設定の場合はfalseを返す。
func (p *OutreachPreferences) OnVacationAt(date time.Time) bool {
	if !p.VacationMode || p.VacationStartDate == nil || p.VacationEndDate == nil {
		return false
	}
	d := date.Truncate(24 * time.Hour)
	start := p.VacationStartDate.Truncate(24 * time.Hour)
	end := p.VacationEndDate.Truncate(24 * time.Hour)
	return !d.Before(start) && !d.After(end)
}

// CampaignReady はアクティブなプロダクト・送信者・顧客プロファイルが
// すべて設定されているかを返す。
func (p *OutreachPreferences) CampaignReady() bool {
	return p.ActiveProductID != nil && *p.ActiveProductID != "" &&
		p.ActiveSenderProfileID != nil && *p.ActiveSenderProfileID != "" &&
		p.ActiveCustomerProfileID != nil && *p.ActiveCustomerProfileID != ""
}

// Location はTimezoneをtime.Locationとして解決する。
// 未設定・不正な値の場合はUTCにフォールバックする。
func (p *OutreachPreferences) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
