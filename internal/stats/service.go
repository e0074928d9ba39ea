// Package stats はバッチ/アイテム履歴からのストリーク・統計の導出を提供する。
// 書き込みは一切行わない読み取り専用のビューであり、
// ダッシュボード表示のたびに安全に再計算できる。
package stats

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/jononovo/sendclaw/internal/model"
	"github.com/jononovo/sendclaw/internal/repository"
)

// StatsService は統計集計のサービス。
type StatsService struct {
	statsRepo repository.StatsRepository
	prefsRepo repository.PreferencesRepository
	logger    *slog.Logger
}

// NewStatsService はStatsServiceの新しいインスタンスを生成する。
func NewStatsService(
	statsRepo repository.StatsRepository,
	prefsRepo repository.PreferencesRepository,
	logger *slog.Logger,
) *StatsService {
	return &StatsService{
		statsRepo: statsRepo,
		prefsRepo: prefsRepo,
		logger:    logger,
	}
}

// Compute は指定ユーザーの統計を計算する。
// 日付の帰属はユーザー設定のタイムゾーンで判定する（サーバーのUTCではない）。
// 履歴がないユーザーにはゼロ値の統計を返す（エラーにしない）。
func (s *StatsService) Compute(ctx context.Context, userID string, now time.Time) (*model.StreakStats, error) {
	prefs, err := s.prefsRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	timezone := "UTC"
	weeklyGoal := 0
	if prefs != nil {
		loc = prefs.Location()
		if prefs.Timezone != "" {
			timezone = prefs.Timezone
		}
		weeklyGoal = len(prefs.ScheduleDays)
	}

	sentDays, err := s.statsRepo.ListSentDays(ctx, userID, timezone)
	if err != nil {
		return nil, err
	}

	days := make(map[time.Time]bool, len(sentDays))
	for _, d := range sentDays {
		days[dayKey(d)] = true
	}

	localNow := now.In(loc)
	today := dayKey(localNow)
	weekStart := mondayOf(today)

	stats := &model.StreakStats{
		CurrentStreak:  currentStreak(days, today),
		LongestStreak:  longestStreak(days),
		WeeklyGoal:     weeklyGoal,
		WeeklyProgress: countDaysInRange(days, weekStart, today),
	}

	// ウィンドウ境界はユーザーのタイムゾーンのローカル深夜0時。
	// フィルタリングはSQL側で行う。
	todayStart := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc)
	weekStartLocal := todayStart.AddDate(0, 0, -daysSinceMonday(today))
	monthStart := time.Date(localNow.Year(), localNow.Month(), 1, 0, 0, 0, 0, loc)

	if stats.Today, err = s.statsRepo.CountSentInWindow(ctx, userID, &todayStart); err != nil {
		return nil, err
	}
	if stats.Week, err = s.statsRepo.CountSentInWindow(ctx, userID, &weekStartLocal); err != nil {
		return nil, err
	}
	if stats.Month, err = s.statsRepo.CountSentInWindow(ctx, userID, &monthStart); err != nil {
		return nil, err
	}
	if stats.AllTime, err = s.statsRepo.CountSentInWindow(ctx, userID, nil); err != nil {
		return nil, err
	}

	return stats, nil
}

// currentStreak は今日（または今日に送信がまだない場合は昨日）から
// 過去に向かって連続する送信日を数える。最初の空白日で途切れる。
func currentStreak(days map[time.Time]bool, today time.Time) int {
	cursor := today
	if !days[cursor] {
		// 今日はまだ進行中かもしれないので、昨日から歩き始める
		cursor = cursor.AddDate(0, 0, -1)
	}

	streak := 0
	for days[cursor] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

// longestStreak は全履歴を通じた最長の連続送信日数を返す。
func longestStreak(days map[time.Time]bool) int {
	if len(days) == 0 {
		return 0
	}

	sorted := make([]time.Time, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	longest := 1
	run := 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Sub(sorted[i-1]) == 24*time.Hour {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 1
		}
	}
	return longest
}

// countDaysInRange は[start, end]（両端含む）の範囲内の送信日数を数える。
func countDaysInRange(days map[time.Time]bool, start, end time.Time) int {
	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if days[d] {
			count++
		}
	}
	return count
}

// dayKey はカレンダー日付をUTC深夜0時のキーに正規化する。
// 元のタイムゾーンでの年月日をそのまま使用する。
func dayKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// mondayOf は指定日を含む週の月曜日を返す（週は月曜始まり）。
func mondayOf(day time.Time) time.Time {
	return day.AddDate(0, 0, -daysSinceMonday(day))
}

// daysSinceMonday は直近の月曜日からの経過日数を返す。
func daysSinceMonday(day time.Time) int {
	// time.WeekdayはSunday=0のため月曜始まりに変換する
	return (int(day.Weekday()) + 6) % 7
}
