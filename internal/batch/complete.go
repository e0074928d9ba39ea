package batch

import (
	"github.com/jononovo/sendclaw/internal/model"
)

// IsComplete はバッチの全アイテムがpendingを離れているかを返す。
// 完了判定は常に現在のアイテム状態から導出し、フラグを信用しない。
// アイテムが0件のバッチは完了扱いとしない（生成時に空バッチは作られない）。
func IsComplete(items []model.OutreachItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if item.Status == model.ItemStatusPending {
			return false
		}
	}
	return true
}

// FindNextPending はafterIndexより後ろで最初のpendingアイテムのインデックスを返す。
// 見つからない場合は-1を返す。UIの「次のアイテムへ」ナビゲーションに使用する。
// インデックスは永続化された挿入順（position）に基づくため、再取得をまたいでも安定する。
func FindNextPending(items []model.OutreachItem, afterIndex int) int {
	for i := afterIndex + 1; i < len(items); i++ {
		if items[i].Status == model.ItemStatusPending {
			return i
		}
	}
	return -1
}
