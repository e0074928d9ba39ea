package composer

import (
	"strings"

	"github.com/jononovo/sendclaw/internal/model"
)

// MergeData はマージフィールドの解決に使用する値の組。
type MergeData struct {
	FirstName   string
	LastName    string
	CompanyName string
	Title       string
}

// MergeDataFromContact はコンタクト+企業からMergeDataを構築する。
func MergeDataFromContact(contact *model.ContactWithCompany) MergeData {
	return MergeData{
		FirstName:   contact.FirstName,
		LastName:    contact.LastName,
		CompanyName: contact.CompanyName,
		Title:       contact.Title,
	}
}

// Render はテンプレート中のマージフィールドを解決する。
// 保存時は未解決のまま持ち、レスポンス生成時にこの関数で解決する。
// 対応する値が空のフィールドはプレースホルダーのまま残す。
func Render(template string, data MergeData) string {
	fields := map[string]string{
		"first_name":   data.FirstName,
		"last_name":    data.LastName,
		"company_name": data.CompanyName,
		"title":        data.Title,
	}

	result := template
	for key, value := range fields {
		if value == "" {
			continue
		}
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}
