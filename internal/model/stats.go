// Package model はドメインモデルを定義する。
package model

// WindowCounts は期間ウィンドウごとの送信実績を表す。
type WindowCounts struct {
	EmailsSent         int
	CompaniesContacted int
}

// StreakStats はバッチ/アイテム履歴から導出される統計を表す。
// 冗長に保存せず、ダッシュボード表示のたびに再計算する（ドリフト防止）。
type StreakStats struct {
	CurrentStreak  int
	LongestStreak  int
	WeeklyGoal     int
	WeeklyProgress int
	Today          WindowCounts
	Week           WindowCounts
	Month          WindowCounts
	AllTime        WindowCounts
}
