package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jononovo/sendclaw/internal/composer"
	"github.com/jononovo/sendclaw/internal/metrics"
	"github.com/jononovo/sendclaw/internal/model"
	"github.com/jononovo/sendclaw/internal/repository"
	"github.com/jononovo/sendclaw/internal/security"
)

// GenerationOutcome はGetOrCreateの結果種別を表す。
type GenerationOutcome string

const (
	// OutcomeCreated は新しいバッチが作成されたことを表す。
	OutcomeCreated GenerationOutcome = "created"
	// OutcomeExisting は同日バッチが既に存在し、それを返したことを表す。
	OutcomeExisting GenerationOutcome = "existing"
	// OutcomeNoContacts は候補コンタクトが0件で生成しなかったことを表す。
	OutcomeNoContacts GenerationOutcome = "no_contacts"
	// OutcomeSuppressed は設定により生成が抑止されたことを表す。
	OutcomeSuppressed GenerationOutcome = "suppressed"
)

// 抑止理由。メトリクスのラベルとレスポンスメッセージに使用する。
const (
	SuppressReasonDisabled         = "disabled"
	SuppressReasonVacation         = "vacation"
	SuppressReasonCampaignNotReady = "campaign_not_ready"
)

// GenerationResult はバッチ生成の結果を表す。
// 「生成するものがない」ことはエラーではなく結果として表現する。
type GenerationResult struct {
	Outcome        GenerationOutcome
	SuppressReason string // Outcome == OutcomeSuppressed のときのみ設定
	Batch          *model.OutreachBatch
	Items          []model.OutreachItem
}

// ComposerClient はメール生成APIクライアントのインターフェース。
type ComposerClient interface {
	Compose(ctx context.Context, req *composer.ComposeRequest) (*composer.ComposeResponse, error)
}

// BatchGenerator はデイリーバッチの冪等な生成サービス。
type BatchGenerator struct {
	batchRepo   repository.BatchRepository
	itemRepo    repository.OutreachItemRepository
	contactRepo repository.ContactRepository
	prefsRepo   repository.PreferencesRepository
	composer    ComposerClient
	sanitizer   security.ContentSanitizerService
	metrics     metrics.MetricsCollector
	logger      *slog.Logger

	defaultBatchSize int
	batchTTL         time.Duration
	lookbackDays     int
}

// NewBatchGenerator はBatchGeneratorの新しいインスタンスを生成する。
func NewBatchGenerator(
	batchRepo repository.BatchRepository,
	itemRepo repository.OutreachItemRepository,
	contactRepo repository.ContactRepository,
	prefsRepo repository.PreferencesRepository,
	composerClient ComposerClient,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	defaultBatchSize int,
	batchTTL time.Duration,
	lookbackDays int,
) *BatchGenerator {
	return &BatchGenerator{
		batchRepo:        batchRepo,
		itemRepo:         itemRepo,
		contactRepo:      contactRepo,
		prefsRepo:        prefsRepo,
		composer:         composerClient,
		sanitizer:        sanitizer,
		metrics:          collector,
		logger:           logger,
		defaultBatchSize: defaultBatchSize,
		batchTTL:         batchTTL,
		lookbackDays:     lookbackDays,
	}
}

// GetOrCreate は指定ユーザー・日付のバッチを冪等に取得または生成する。
// 同日のアクティブまたは完了済みバッチが既に存在する場合はそれを返す。
// 設定が無効・休暇中・キャンペーン未設定の場合は抑止として報告する。
func (g *BatchGenerator) GetOrCreate(ctx context.Context, userID string, date time.Time) (*GenerationResult, error) {
	batchDate := normalizeDate(date)

	// 生成前に既存バッチを確認する（最頻のパスを先に）
	existing, err := g.batchRepo.FindActiveByUserAndDate(ctx, userID, batchDate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		items, err := g.itemRepo.ListByBatch(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		return &GenerationResult{Outcome: OutcomeExisting, Batch: existing, Items: items}, nil
	}

	prefs, err := g.prefsRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if reason := suppressReason(prefs, batchDate); reason != "" {
		g.metrics.RecordGenerationSuppressed(reason)
		g.logger.Info("バッチ生成を抑止しました",
			slog.String("user_id", userID),
			slog.String("reason", reason),
		)
		return &GenerationResult{Outcome: OutcomeSuppressed, SuppressReason: reason}, nil
	}

	return g.create(ctx, userID, batchDate, prefs)
}

// Regenerate は同日の既存アクティブバッチを失効させ、新しいバッチを生成する。
// 既存バッチがない場合はGetOrCreateと同じ振る舞いになる。
func (g *BatchGenerator) Regenerate(ctx context.Context, userID string, date time.Time) (*GenerationResult, error) {
	batchDate := normalizeDate(date)

	prefs, err := g.prefsRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if reason := suppressReason(prefs, batchDate); reason != "" {
		g.metrics.RecordGenerationSuppressed(reason)
		return &GenerationResult{Outcome: OutcomeSuppressed, SuppressReason: reason}, nil
	}

	existing, err := g.batchRepo.FindActiveByUserAndDate(ctx, userID, batchDate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// 既存バッチを失効させてから新規生成する。
		// 失効済みバッチのアイテムはルックバック除外の対象外になる。
		if err := g.batchRepo.UpdateStatus(ctx, existing.ID, model.BatchStatusExpired); err != nil {
			return nil, err
		}
		g.logger.Info("再生成のため既存バッチを失効させました",
			slog.String("user_id", userID),
			slog.String("batch_id", existing.ID),
		)
	}

	return g.create(ctx, userID, batchDate, prefs)
}

// create は候補選定・メール生成・永続化を行う。
// アクティブバッチのユニーク制約に負けた場合は勝者のバッチを返す（冪等）。
func (g *BatchGenerator) create(ctx context.Context, userID string, batchDate time.Time, prefs *model.OutreachPreferences) (*GenerationResult, error) {
	start := time.Now()

	batchSize := g.defaultBatchSize
	if prefs.MinContactsRequired > 0 {
		batchSize = prefs.MinContactsRequired
	}

	contacts, err := g.contactRepo.ListEligible(ctx, userID, g.lookbackDays, batchSize)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		g.logger.Info("候補コンタクトが0件のため生成しません",
			slog.String("user_id", userID),
		)
		return &GenerationResult{Outcome: OutcomeNoContacts}, nil
	}

	token, err := generateSecureToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	batch := &model.OutreachBatch{
		ID:          uuid.New().String(),
		UserID:      userID,
		BatchDate:   batchDate,
		SecureToken: token,
		Status:      model.BatchStatusActive,
		ExpiresAt:   batchDate.Add(g.batchTTL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// コンタクトごとにメールを生成する。失敗したコンタクトは除外し、
	// 全件失敗した場合のみエラーとする。
	items := make([]*model.OutreachItem, 0, len(contacts))
	for _, contact := range contacts {
		resp, err := g.composer.Compose(ctx, composer.BuildRequest(&contact, prefs))
		if err != nil {
			g.metrics.RecordComposeFailure()
			g.logger.Warn("メール生成に失敗したためコンタクトを除外します",
				slog.String("user_id", userID),
				slog.String("contact_id", contact.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		items = append(items, &model.OutreachItem{
			ID:           uuid.New().String(),
			BatchID:      batch.ID,
			ContactID:    contact.ID,
			CompanyID:    contact.CompanyID,
			Position:     len(items),
			EmailSubject: resp.Subject,
			EmailBody:    g.sanitizer.Sanitize(resp.Body),
			EmailTone:    resp.Tone,
			Status:       model.ItemStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	if len(items) == 0 {
		return nil, model.NewComposeFailedError("全コンタクトのメール生成に失敗しました")
	}

	if err := g.batchRepo.CreateWithItems(ctx, batch, items); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveBatch) {
			// 並行生成に負けた。勝者のバッチを返す。
			winner, ferr := g.batchRepo.FindActiveByUserAndDate(ctx, userID, batchDate)
			if ferr != nil {
				return nil, ferr
			}
			if winner == nil {
				return nil, err
			}
			winnerItems, ferr := g.itemRepo.ListByBatch(ctx, winner.ID)
			if ferr != nil {
				return nil, ferr
			}
			return &GenerationResult{Outcome: OutcomeExisting, Batch: winner, Items: winnerItems}, nil
		}
		return nil, err
	}

	g.metrics.RecordBatchGenerated(len(items))
	g.metrics.RecordGenerationLatency(time.Since(start))
	g.logger.Info("バッチを生成しました",
		slog.String("user_id", userID),
		slog.String("batch_id", batch.ID),
		slog.Int("item_count", len(items)),
	)

	result := make([]model.OutreachItem, len(items))
	for i, item := range items {
		result[i] = *item
	}
	return &GenerationResult{Outcome: OutcomeCreated, Batch: batch, Items: result}, nil
}

// suppressReason は設定に基づく抑止理由を返す。抑止しない場合は空文字を返す。
func suppressReason(prefs *model.OutreachPreferences, date time.Time) string {
	if prefs == nil || !prefs.Enabled {
		return SuppressReasonDisabled
	}
	if prefs.OnVacationAt(date) {
		return SuppressReasonVacation
	}
	if !prefs.CampaignReady() {
		return SuppressReasonCampaignNotReady
	}
	return ""
}

// normalizeDate は日付をUTC深夜0時に正規化する。
// batch_dateはカレンダー日付であり、時刻部分を持たない。
func normalizeDate(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
}
