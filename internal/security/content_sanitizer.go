// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はコンポーザーが生成したメール本文HTMLをサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// メール本文として安全なタグと属性のみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// 生成メールの保存前および編集内容の保存前に使用される。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// メール本文向けの許可タグ（p, br, a, ul, ol, li, blockquote, strong, em, b, i, u, span, div）
	// のみを通過させ、script, iframe, styleタグおよびon*イベント属性を除去する。
	// マージフィールド（{first_name}等）はプレーンテキストのため影響を受けない。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, strong, em, b, i, u, span, div
//   - 禁止タグ: script, iframe, style, img および全てのon*イベント属性
//   - aタグ: href属性のみ許可（メールクライアント互換のためtarget等は付与しない）
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// メール本文で一般的な整形タグのみ許可する。
	// script, iframe, style等は許可リストに含めないことで自動的に除去される。
	// 外部画像のトラッキング回避のためimgも許可しない。
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote",
		"strong", "em", "b", "i", "u",
		"span", "div",
	)

	// aタグはhref属性のみ。メール本文のためtarget/relの付与は行わない。
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
