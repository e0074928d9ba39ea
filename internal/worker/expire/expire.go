// Package expire はTTL超過バッチの失効処理ジョブを提供する。
// expires_atを過ぎたアクティブバッチを定期的にexpiredへ遷移させる。
// 完了済みバッチは対象外で、完了状態のまま保たれる。
package expire

import (
	"context"
	"log/slog"
	"time"

	"github.com/jononovo/sendclaw/internal/metrics"
	"github.com/jononovo/sendclaw/internal/repository"
)

// ExpireJob はバッチ失効処理の定期ジョブ。
// 冪等: 対象がない場合でもエラーにならない。
type ExpireJob struct {
	batchRepo repository.BatchRepository
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewExpireJob は新しいExpireJobを生成する。
func NewExpireJob(batchRepo repository.BatchRepository, collector metrics.MetricsCollector, logger *slog.Logger) *ExpireJob {
	return &ExpireJob{
		batchRepo: batchRepo,
		metrics:   collector,
		logger:    logger,
	}
}

// Start はティッカーでジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *ExpireJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("失効ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := j.Run(ctx, time.Now()); err != nil {
		j.logger.Error("失効処理の実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("失効ジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx, time.Now()); err != nil {
				j.logger.Error("失効処理の実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Run はexpires_atを過ぎたアクティブバッチを失効させる。
func (j *ExpireJob) Run(ctx context.Context, now time.Time) error {
	start := time.Now()

	expired, err := j.batchRepo.ExpireOverdue(ctx, now)
	if err != nil {
		return err
	}

	if expired > 0 {
		j.metrics.RecordBatchesExpired(expired)
		j.logger.Info("失効処理が完了しました",
			slog.Int64("expired_count", expired),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}

	return nil
}
