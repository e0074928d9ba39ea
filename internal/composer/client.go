// Package composer は外部のメール生成API（コンポーザー）との連携を提供する。
// コンタクト・企業・アクティブプロファイルのコンテキストから
// 件名・本文・トーンを生成する。
package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jononovo/sendclaw/internal/model"
)

// defaultTimeout はコンポーザーAPI呼び出しの既定タイムアウト。
const defaultTimeout = 30 * time.Second

// ComposeRequest はコンポーザーAPIへのリクエストボディ。
type ComposeRequest struct {
	ContactFirstName  string `json:"contact_first_name"`
	ContactLastName   string `json:"contact_last_name"`
	ContactTitle      string `json:"contact_title"`
	CompanyName       string `json:"company_name"`
	CompanyDomain     string `json:"company_domain"`
	CompanyIndustry   string `json:"company_industry"`
	ProductID         string `json:"product_id"`
	SenderProfileID   string `json:"sender_profile_id"`
	CustomerProfileID string `json:"customer_profile_id"`
}

// ComposeResponse はコンポーザーAPIからのレスポンスボディ。
// 本文には未解決のマージフィールド（{first_name}等）が含まれうる。
type ComposeResponse struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Tone    string `json:"tone"`
}

// Client はコンポーザーAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
	apiKey     string
}

// NewClient はClient の新しいインスタンスを生成する。
// httpClientがnilの場合は既定タイムアウト付きのクライアントを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint, apiKey string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// Compose はコンタクト・企業・プロファイルのコンテキストからメールを生成する。
// 非200レスポンスはエラーとして返す（呼び出し元がアイテムのスキップを判断する）。
func (c *Client) Compose(ctx context.Context, req *ComposeRequest) (*ComposeResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("コンポーザーAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewComposeFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("コンポーザーAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewComposeFailedError(fmt.Sprintf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result ComposeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("コンポーザーAPIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewComposeFailedError("invalid response body")
	}

	if result.Subject == "" || result.Body == "" {
		return nil, model.NewComposeFailedError("empty subject or body")
	}

	return &result, nil
}

// BuildRequest はコンタクト+企業とアクティブプロファイルからComposeRequestを構築する。
func BuildRequest(contact *model.ContactWithCompany, prefs *model.OutreachPreferences) *ComposeRequest {
	req := &ComposeRequest{
		ContactFirstName: contact.FirstName,
		ContactLastName:  contact.LastName,
		ContactTitle:     contact.Title,
		CompanyName:      contact.CompanyName,
		CompanyDomain:    contact.CompanyDomain,
		CompanyIndustry:  contact.CompanyIndustry,
	}
	if prefs.ActiveProductID != nil {
		req.ProductID = *prefs.ActiveProductID
	}
	if prefs.ActiveSenderProfileID != nil {
		req.SenderProfileID = *prefs.ActiveSenderProfileID
	}
	if prefs.ActiveCustomerProfileID != nil {
		req.CustomerProfileID = *prefs.ActiveCustomerProfileID
	}
	return req
}
