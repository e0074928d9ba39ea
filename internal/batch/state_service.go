package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/jononovo/sendclaw/internal/metrics"
	"github.com/jononovo/sendclaw/internal/model"
	"github.com/jononovo/sendclaw/internal/repository"
	"github.com/jononovo/sendclaw/internal/security"
)

// ItemUpdate はアイテム内容の部分更新を表す。nilのフィールドは変更しない。
type ItemUpdate struct {
	EmailSubject *string
	EmailBody    *string
}

// TransitionOptions は状態遷移時のオプション。
type TransitionOptions struct {
	// SuppressCompletion がtrueの場合、遷移後の完了再計算を行わない。
	// クライアント側がナビゲーションを駆動する場合に使用する。
	// 完了を断定する手段ではなく再計算を遅延させるだけで、
	// 遅延した分は次のGetBatchで収束する。
	SuppressCompletion bool
}

// BatchStateService はバッチとアイテムの状態遷移サービス。
// 全操作はセキュアトークンでバッチを解決し、失効判定を一律に適用する。
type BatchStateService struct {
	batchRepo repository.BatchRepository
	itemRepo  repository.OutreachItemRepository
	sanitizer security.ContentSanitizerService
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewBatchStateService はBatchStateServiceの新しいインスタンスを生成する。
func NewBatchStateService(
	batchRepo repository.BatchRepository,
	itemRepo repository.OutreachItemRepository,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *BatchStateService {
	return &BatchStateService{
		batchRepo: batchRepo,
		itemRepo:  itemRepo,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
	}
}

// GetBatch はトークンでバッチとアイテム一覧（挿入順）を取得する。
// 未知のトークンはBATCH_NOT_FOUND、失効済みはBATCH_EXPIREDを返す。
// 失効判定は読み取りにも一律に適用される。
// SuppressCompletion付きの遷移で完了反映が遅延している場合、ここで収束させる。
func (s *BatchStateService) GetBatch(ctx context.Context, token string, now time.Time) (*model.OutreachBatch, []model.OutreachItem, error) {
	batch, err := s.resolveBatch(ctx, token, now)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.itemRepo.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, nil, err
	}

	// 抑止された完了再計算の取りこぼしを読み取り時に回収する。
	// これがないと最後の遷移がsuppress付きだったバッチがactiveのまま残り、
	// 失効ジョブが完了済みバッチをexpiredに倒してしまう。
	if batch.Status == model.BatchStatusActive && IsComplete(items) {
		if err := s.recomputeCompletion(ctx, batch); err != nil {
			return nil, nil, err
		}
		refreshed, err := s.batchRepo.FindByID(ctx, batch.ID)
		if err != nil {
			return nil, nil, err
		}
		if refreshed != nil {
			batch = refreshed
		}
	}

	return batch, items, nil
}

// UpdateItem はpending状態のアイテムの件名・本文を上書きする。
// 内容の編集では状態は遷移せず、pendingのまま保たれる。
// 本文を編集した場合のみedited_contentに記録される（件名のみの編集では更新しない）。
func (s *BatchStateService) UpdateItem(ctx context.Context, token, itemID string, update ItemUpdate, now time.Time) (*model.OutreachItem, error) {
	batch, err := s.resolveBatch(ctx, token, now)
	if err != nil {
		return nil, err
	}

	item, err := s.itemRepo.FindByBatchAndID(ctx, batch.ID, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(itemID)
	}
	if item.Status != model.ItemStatusPending {
		return nil, model.NewInvalidItemStateError(item.Status)
	}

	subject := item.EmailSubject
	if update.EmailSubject != nil {
		subject = *update.EmailSubject
	}
	body := item.EmailBody
	var edited *string
	if update.EmailBody != nil {
		body = s.sanitizer.Sanitize(*update.EmailBody)
		edited = &body
	}

	updated, err := s.itemRepo.UpdateContent(ctx, itemID, subject, body, edited)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// 事前チェックと更新の間に別の遷移が割り込んだ
		return nil, s.staleItemError(ctx, batch.ID, itemID)
	}

	return updated, nil
}

// MarkSent はアイテムをpendingからsentに遷移させ、sent_atを設定する。
// 既にsentのアイテムへの再呼び出しはno-opとして既存アイテムを返す
// （ネットワークリトライで統計を二重計上しないため）。
// skippedからの遷移はINVALID_ITEM_STATEを返す。
func (s *BatchStateService) MarkSent(ctx context.Context, token, itemID string, now time.Time, opts TransitionOptions) (*model.OutreachItem, error) {
	batch, err := s.resolveBatch(ctx, token, now)
	if err != nil {
		return nil, err
	}

	item, err := s.itemRepo.FindByBatchAndID(ctx, batch.ID, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(itemID)
	}
	if item.Status == model.ItemStatusSent {
		return item, nil
	}
	if item.Status != model.ItemStatusPending {
		return nil, model.NewInvalidItemStateError(item.Status)
	}

	updated, err := s.itemRepo.MarkSent(ctx, itemID, now)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// 並行する遷移に負けた。sentに遷移済みならno-opとして扱う。
		current, ferr := s.itemRepo.FindByBatchAndID(ctx, batch.ID, itemID)
		if ferr != nil {
			return nil, ferr
		}
		if current != nil && current.Status == model.ItemStatusSent {
			return current, nil
		}
		return nil, s.staleItemError(ctx, batch.ID, itemID)
	}

	s.metrics.RecordItemSent()

	if !opts.SuppressCompletion {
		if err := s.recomputeCompletion(ctx, batch); err != nil {
			return nil, err
		}
	}

	return updated, nil
}

// MarkSkipped はアイテムをpendingからskippedに遷移させる。
// pending以外からの遷移はすべてINVALID_ITEM_STATEを返す。
func (s *BatchStateService) MarkSkipped(ctx context.Context, token, itemID string, now time.Time, opts TransitionOptions) (*model.OutreachItem, error) {
	batch, err := s.resolveBatch(ctx, token, now)
	if err != nil {
		return nil, err
	}

	item, err := s.itemRepo.FindByBatchAndID(ctx, batch.ID, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(itemID)
	}
	if item.Status != model.ItemStatusPending {
		return nil, model.NewInvalidItemStateError(item.Status)
	}

	updated, err := s.itemRepo.MarkSkipped(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, s.staleItemError(ctx, batch.ID, itemID)
	}

	s.metrics.RecordItemSkipped()

	if !opts.SuppressCompletion {
		if err := s.recomputeCompletion(ctx, batch); err != nil {
			return nil, err
		}
	}

	return updated, nil
}

// resolveBatch はトークンでバッチを解決し、失効判定を適用する。
func (s *BatchStateService) resolveBatch(ctx context.Context, token string, now time.Time) (*model.OutreachBatch, error) {
	batch, err := s.batchRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, model.NewBatchNotFoundError()
	}
	if batch.IsExpiredAt(now) {
		return nil, model.NewBatchExpiredError()
	}
	return batch, nil
}

// recomputeCompletion は完了状態を導出して反映する。
// 渡されたフラグを信用せず、常に現在のpendingアイテム数から再計算する。
func (s *BatchStateService) recomputeCompletion(ctx context.Context, batch *model.OutreachBatch) error {
	pending, err := s.itemRepo.CountPendingByBatch(ctx, batch.ID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}
	if batch.Status == model.BatchStatusCompleted {
		return nil
	}

	if err := s.batchRepo.UpdateStatus(ctx, batch.ID, model.BatchStatusCompleted); err != nil {
		return err
	}
	s.logger.Info("バッチが完了しました",
		slog.String("batch_id", batch.ID),
		slog.String("user_id", batch.UserID),
	)
	return nil
}

// staleItemError は条件付き更新が空振りした場合のエラーを構築する。
// 最新の状態を取得してINVALID_ITEM_STATEに反映する。
func (s *BatchStateService) staleItemError(ctx context.Context, batchID, itemID string) error {
	current, err := s.itemRepo.FindByBatchAndID(ctx, batchID, itemID)
	if err != nil {
		return err
	}
	if current == nil {
		return model.NewItemNotFoundError(itemID)
	}
	return model.NewInvalidItemStateError(current.Status)
}
