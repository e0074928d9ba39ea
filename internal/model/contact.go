// Package model はドメインモデルを定義する。
package model

import "time"

// Company はコンタクトの所属企業を表す。
// 検索・エンリッチメント側で投入される読み取り専用データ。
type Company struct {
	ID        string
	UserID    string
	Name      string
	Domain    string
	Industry  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contact はアウトリーチ候補のコンタクトを表す。
// ProbabilityScoreは検索・エンリッチメント側が付与した返信確度スコア。
type Contact struct {
	ID               string
	UserID           string
	CompanyID        string
	FirstName        string
	LastName         string
	Email            string
	Title            string
	ProbabilityScore float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ContactWithCompany はコンタクトと所属企業を結合したモデル。
// バッチ生成時の候補選定とメール生成コンテキストに使用する。
type ContactWithCompany struct {
	Contact
	CompanyName     string
	CompanyDomain   string
	CompanyIndustry string
}
