package llm

import "context"

// Request 描述一次文本生成调用：系统指令加用户文本。
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response 是大模型返回的原始文本。
type Response struct {
	Content string
	Model   string
}

// Client 定义了调用文本生成服务的统一接口，分类与回复生成共用。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
