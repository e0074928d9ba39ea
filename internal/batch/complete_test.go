package batch

import (
	"testing"

	"github.com/jononovo/sendclaw/internal/model"
)

func itemsWithStatuses(statuses ...model.ItemStatus) []model.OutreachItem {
	items := make([]model.OutreachItem, len(statuses))
	for i, s := range statuses {
		items[i] = model.OutreachItem{Position: i, Status: s}
	}
	return items
}

// TestIsComplete は完了判定がアイテム状態から導出されることを検証する。
func TestIsComplete(t *testing.T) {
	tests := []struct {
		name  string
		items []model.OutreachItem
		want  bool
	}{
		{
			name:  "全件pendingは未完了",
			items: itemsWithStatuses(model.ItemStatusPending, model.ItemStatusPending),
			want:  false,
		},
		{
			name:  "pendingが1件でも残れば未完了",
			items: itemsWithStatuses(model.ItemStatusSent, model.ItemStatusPending, model.ItemStatusSkipped),
			want:  false,
		},
		{
			name:  "全件がpendingを離れたら完了",
			items: itemsWithStatuses(model.ItemStatusSent, model.ItemStatusSkipped, model.ItemStatusSent),
			want:  true,
		},
		{
			name:  "全件skippedでも完了",
			items: itemsWithStatuses(model.ItemStatusSkipped, model.ItemStatusSkipped),
			want:  true,
		},
		{
			name:  "空のアイテム一覧は完了扱いしない",
			items: nil,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsComplete(tt.items); got != tt.want {
				t.Errorf("IsComplete = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestFindNextPending は次のpendingアイテムの探索を検証する。
func TestFindNextPending(t *testing.T) {
	tests := []struct {
		name       string
		items      []model.OutreachItem
		afterIndex int
		want       int
	}{
		{
			name:       "直後のpendingを返す",
			items:      itemsWithStatuses(model.ItemStatusSent, model.ItemStatusPending, model.ItemStatusPending),
			afterIndex: 0,
			want:       1,
		},
		{
			name:       "pending以外を飛ばす",
			items:      itemsWithStatuses(model.ItemStatusSent, model.ItemStatusSkipped, model.ItemStatusPending),
			afterIndex: 0,
			want:       2,
		},
		{
			name:       "後方にpendingがなければ-1",
			items:      itemsWithStatuses(model.ItemStatusPending, model.ItemStatusSent, model.ItemStatusSkipped),
			afterIndex: 0,
			want:       -1,
		},
		{
			name:       "afterIndex=-1で先頭から探索",
			items:      itemsWithStatuses(model.ItemStatusPending, model.ItemStatusSent),
			afterIndex: -1,
			want:       0,
		},
		{
			name:       "空の一覧は-1",
			items:      nil,
			afterIndex: 0,
			want:       -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindNextPending(tt.items, tt.afterIndex); got != tt.want {
				t.Errorf("FindNextPending = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestBatchWalkthrough はバッチを順に処理するシナリオを検証する。
// A送信 → 次はB、Bスキップ → 次はC、C送信 → 完了。
func TestBatchWalkthrough(t *testing.T) {
	items := itemsWithStatuses(model.ItemStatusPending, model.ItemStatusPending, model.ItemStatusPending)

	// A=0を送信
	items[0].Status = model.ItemStatusSent
	if IsComplete(items) {
		t.Error("B, Cが残っているので未完了のはず")
	}
	if next := FindNextPending(items, 0); next != 1 {
		t.Errorf("次のpending = %d, want 1", next)
	}

	// B=1をスキップ
	items[1].Status = model.ItemStatusSkipped
	if next := FindNextPending(items, 1); next != 2 {
		t.Errorf("次のpending = %d, want 2", next)
	}

	// C=2を送信
	items[2].Status = model.ItemStatusSent
	if !IsComplete(items) {
		t.Error("全件処理済みなので完了のはず")
	}
	if next := FindNextPending(items, 2); next != -1 {
		t.Errorf("次のpending = %d, want -1", next)
	}
}
