package custom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"StackSave/internal/llm"
)

const defaultTimeout = 30 * time.Second

// Client 调用自建的文本生成端点，请求体为 {system, message}。
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient 创建自定义端点客户端。
func NewClient(url string, timeout time.Duration) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("未配置自定义 LLM 地址")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{url: url, httpClient: &http.Client{Timeout: timeout}}, nil
}

type request struct {
	System  string `json:"system"`
	Message string `json:"message"`
}

// Generate 发送请求并读取 response 字段，缺失时读取 content 字段。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload, err := json.Marshal(request{System: req.System, Message: req.Prompt})
	if err != nil {
		return nil, fmt.Errorf("序列化自定义 LLM 请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建自定义 LLM 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求自定义 LLM 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("自定义 LLM 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Response string `json:"response"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析自定义 LLM 响应失败: %w", err)
	}

	content := strings.TrimSpace(decoded.Response)
	if content == "" {
		content = strings.TrimSpace(decoded.Content)
	}
	if content == "" {
		return nil, errors.New("自定义 LLM 响应内容为空")
	}
	return &llm.Response{Content: content, Model: "custom"}, nil
}
