package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"StackSave/internal/chat"
	"StackSave/internal/observability/metrics"
	"StackSave/internal/storage/journal"
	"StackSave/pkg/logger"

	"github.com/google/uuid"
)

const maxBodyBytes = 64 << 10

// MessageProcessor 过滤并处理一条消息，第二个返回值为 false 表示消息被忽略。
type MessageProcessor interface {
	Process(ctx context.Context, msg chat.Message) (string, bool)
}

// Option 自定义 Server。
type Option func(*Server)

// WithJournal 配置交互日志查询。
func WithJournal(repo journal.InteractionRepository) Option {
	return func(s *Server) {
		s.journal = repo
	}
}

// WithToken 为 /api/ 路由启用共享令牌校验。
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// Server 负责暴露 webhook 与运维接口。
type Server struct {
	addr      string
	processor MessageProcessor
	journal   journal.InteractionRepository
	token     string
	log       *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, processor MessageProcessor, opts ...Option) *Server {
	s := &Server{addr: addr, processor: processor, log: logger.Named("api")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/messages", instrument("messages", requireToken(s.token, http.HandlerFunc(s.handleMessages))))
	mux.Handle("/api/v1/interactions", instrument("interactions", requireToken(s.token, http.HandlerFunc(s.handleInteractions))))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type messageRequest struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	SenderID   string `json:"sender_id"`
	IsGroup    bool   `json:"is_group"`
	IsFromSelf bool   `json:"is_from_self"`
}

type messageResponse struct {
	ID    string `json:"id"`
	Reply string `json:"reply"`
}

// handleMessages 同步处理网关推送的消息并返回回复。
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.processor == nil {
		http.Error(w, "消息处理器未初始化", http.StatusServiceUnavailable)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SenderID) == "" {
		http.Error(w, "sender_id 不能为空", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}

	reply, ok := s.processor.Process(r.Context(), chat.Message{
		ID:         req.ID,
		Text:       req.Text,
		SenderID:   req.SenderID,
		IsGroup:    req.IsGroup,
		IsFromSelf: req.IsFromSelf,
		ReceivedAt: time.Now(),
	})
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{ID: req.ID, Reply: reply})
}

// handleInteractions 返回最近的交互日志。
func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		http.Error(w, "交互日志未启用", http.StatusServiceUnavailable)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit 必须为正整数", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	records, err := s.journal.ListLatest(r.Context(), limit)
	if err != nil {
		s.log.Error("查询交互日志失败", slog.Any("error", err))
		http.Error(w, "查询交互日志失败", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []journal.InteractionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
