// Package generate はデイリーバッチのバックグラウンド生成処理を提供する。
// スケジューラはユーザーごとの送信スケジュール（曜日・時刻・タイムゾーン）を
// 判定し、期日が来たユーザーのバッチ生成を実行する。
package generate

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jononovo/sendclaw/internal/batch"
	"github.com/jononovo/sendclaw/internal/model"
	"github.com/jononovo/sendclaw/internal/repository"
)

// GeneratorService はバッチ生成の実行インターフェース。
type GeneratorService interface {
	// GetOrCreate は指定ユーザー・日付のバッチを冪等に取得または生成する。
	GetOrCreate(ctx context.Context, userID string, date time.Time) (*batch.GenerationResult, error)
}

// Scheduler はバッチ生成のスケジューリングと並列制御を行う。
// ティッカーで有効ユーザーの設定を取得し、期日判定に合格したユーザーの
// 生成をsemaphoreパターンで最大並列数を制御しながら実行する。
// 生成自体が冪等なため、重複起動やリトライは安全。
type Scheduler struct {
	prefsRepo      repository.PreferencesRepository
	generator      GeneratorService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	prefsRepo repository.PreferencesRepository,
	generator GeneratorService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		prefsRepo:      prefsRepo,
		generator:      generator,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("生成スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx, time.Now()); err != nil {
		s.logger.Error("生成サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("生成スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx, time.Now()); err != nil {
				s.logger.Error("生成サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は有効ユーザーの設定を1回取得し、期日が来たユーザーの生成を並列で実行する。
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) error {
	start := time.Now()

	prefsList, err := s.prefsRepo.ListEnabled(ctx)
	if err != nil {
		return err
	}

	due := make([]*model.OutreachPreferences, 0, len(prefsList))
	for _, prefs := range prefsList {
		if isDue(prefs, now) {
			due = append(due, prefs)
		}
	}

	if len(due) == 0 {
		return nil
	}

	s.logger.Info("生成サイクルを開始します",
		slog.Int("due_count", len(due)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, prefs := range due {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(p *model.OutreachPreferences) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			// batch_dateはユーザーのローカル日付
			localNow := now.In(p.Location())
			result, err := s.generator.GetOrCreate(ctx, p.UserID, localNow)
			if err != nil {
				s.logger.Error("バッチ生成に失敗しました",
					slog.String("user_id", p.UserID),
					slog.String("error", err.Error()),
				)
				return
			}
			if result.Outcome == batch.OutcomeCreated {
				s.logger.Info("スケジュール生成を実行しました",
					slog.String("user_id", p.UserID),
					slog.String("batch_id", result.Batch.ID),
					slog.Int("item_count", len(result.Items)),
				)
			}
		}(prefs)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("生成サイクルが完了しました",
		slog.Int("due_count", len(due)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// isDue はユーザーの生成期日が来ているかを判定する。
// 条件: 今日（ユーザーのタイムゾーン）がschedule_daysに含まれ、
// ローカル時刻がschedule_timeを過ぎていること。
// 既存バッチの有無は生成側の冪等性に委ねる。
func isDue(prefs *model.OutreachPreferences, now time.Time) bool {
	localNow := now.In(prefs.Location())

	today := strings.ToLower(localNow.Weekday().String())
	scheduled := false
	for _, d := range prefs.ScheduleDays {
		if d == today {
			scheduled = true
			break
		}
	}
	if !scheduled {
		return false
	}

	if prefs.ScheduleTime == "" {
		return true
	}
	scheduleTime, err := time.Parse("15:04", prefs.ScheduleTime)
	if err != nil {
		// 不正な時刻設定はスキップ（保存時にバリデーション済みのはず）
		return false
	}

	minutesNow := localNow.Hour()*60 + localNow.Minute()
	minutesScheduled := scheduleTime.Hour()*60 + scheduleTime.Minute()
	return minutesNow >= minutesScheduled
}
