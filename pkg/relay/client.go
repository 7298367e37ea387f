// Package relay is the client side of the local AI relay. It never returns an error:
// every failure is normalized into one of a few fixed display strings and the cause is logged.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"careerkit-go/pkg/log"
)

// 固定的展示文案，调用方只会看到这些字符串之一或上游文本本身。
const (
	MsgBackendError = "AI Error from backend."
	MsgEmptyText    = "AI Error: Empty response."
	MsgUnreachable  = "AI Error: Could not connect to backend."
)

// Client 调用中继的 POST /api/ai。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建一个指向 baseURL 的中继客户端，例如 http://localhost:3000。
func NewClient(baseURL string) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{})
}

// NewClientWithHTTP 使用自定义的 http.Client 创建中继客户端。
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type request struct {
	SystemPrompt string `json:"systemPrompt"`
	UserPrompt   string `json:"userPrompt"`
}

type response struct {
	Text string `json:"text"`
}

// Call 发送一次请求并等待结果，不重试，也不额外设置超时。
func (c *Client) Call(ctx context.Context, systemPrompt, userPrompt string) string {
	body, err := json.Marshal(request{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if err != nil {
		log.Error("relay: 序列化请求失败", err)
		return MsgUnreachable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ai", bytes.NewReader(body))
	if err != nil {
		log.Error("relay: 创建请求失败", err)
		return MsgUnreachable
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("relay: 无法连接到中继服务", err)
		return MsgUnreachable
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("relay: 读取响应失败", err)
		return MsgUnreachable
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warnw("relay: 中继返回错误", "status", resp.StatusCode, "body", string(raw))
		return MsgBackendError
	}

	var data response
	if err := json.Unmarshal(raw, &data); err != nil || data.Text == "" {
		log.Warnw("relay: 中继未返回文本", "body", string(raw), "error", err)
		return MsgEmptyText
	}
	return data.Text
}
