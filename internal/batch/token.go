// Package batch はデイリーアウトリーチバッチの生成と状態遷移を提供する。
package batch

import (
	"crypto/rand"
	"encoding/hex"
)

// generateSecureToken はログイン不要のリンクアクセスに使用する
// 暗号的に安全なトークンを生成する。
func generateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
