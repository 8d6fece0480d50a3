package journal

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
	memoryWindow     = 512
	journalFileName  = "interactions.log"
)

// InteractionRecord 是一条已处理消息的运营日志，不保存用户或钱包数据。
type InteractionRecord struct {
	ID         string  `json:"id"`
	Sender     string  `json:"sender"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Amount     string  `json:"amount,omitempty"`
	Coin       string  `json:"coin,omitempty"`
	Success    bool    `json:"success"`
	TxHash     string  `json:"tx_hash,omitempty"`
	Error      string  `json:"error,omitempty"`
	Reply      string  `json:"reply"`
	Strategy   string  `json:"strategy"`
	CreatedAt  int64   `json:"created_at"`
}

// InteractionRepository 抽象交互日志的持久化接口。
type InteractionRepository interface {
	Save(ctx context.Context, record *InteractionRecord) error
	ListLatest(ctx context.Context, limit int) ([]InteractionRecord, error)
}

func prepareRecord(record *InteractionRecord) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}
}

func normaliseLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// FileInteractionRepository 以 JSON Lines 追加写入本地文件，并在内存中保留最近的记录。
type FileInteractionRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []InteractionRecord
}

// NewFileInteractionRepository 在 dataDir 下创建或恢复交互日志。
func NewFileInteractionRepository(dataDir string) (*FileInteractionRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &FileInteractionRepository{dataFile: filepath.Join(dataDir, journalFileName)}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录交互。
func (m *FileInteractionRepository) Save(_ context.Context, record *InteractionRecord) error {
	if record == nil {
		return fmt.Errorf("交互记录不能为空")
	}
	prepareRecord(record)

	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开交互日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化交互记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入交互日志失败: %w", err)
	}

	m.records = append([]InteractionRecord{*record}, m.records...)
	if len(m.records) > memoryWindow {
		m.records = m.records[:memoryWindow]
	}
	return nil
}

// ListLatest 返回最近的交互记录，最新的在前。
func (m *FileInteractionRepository) ListLatest(_ context.Context, limit int) ([]InteractionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = normaliseLimit(limit)
	if limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]InteractionRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

func (m *FileInteractionRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取交互日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var restored []InteractionRecord
	for scanner.Scan() {
		var record InteractionRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]InteractionRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析交互日志失败: %w", err)
	}

	if len(restored) > memoryWindow {
		restored = restored[:memoryWindow]
	}
	m.records = restored
	return nil
}

// SQLInteractionRepository 使用 MySQL 存储交互日志。
type SQLInteractionRepository struct {
	db *sql.DB
}

// NewSQLInteractionRepository 创建连接池并执行迁移。
func NewSQLInteractionRepository(ctx context.Context, cfg Config) (*SQLInteractionRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLInteractionRepository{db: db}, nil
}

const insertInteractionSQL = `INSERT INTO interactions
    (id, sender, intent, confidence, amount, coin, success, tx_hash, error_message, reply, strategy, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const listInteractionsSQL = `SELECT id, sender, intent, confidence, amount, coin, success, tx_hash, error_message, reply, strategy, created_at
    FROM interactions ORDER BY created_at DESC, id DESC LIMIT ?`

// Save 写入一条交互记录。
func (s *SQLInteractionRepository) Save(ctx context.Context, record *InteractionRecord) error {
	if record == nil {
		return fmt.Errorf("交互记录不能为空")
	}
	prepareRecord(record)

	if _, err := s.db.ExecContext(ctx, insertInteractionSQL,
		record.ID,
		record.Sender,
		record.Intent,
		record.Confidence,
		record.Amount,
		record.Coin,
		boolToInt(record.Success),
		record.TxHash,
		record.Error,
		record.Reply,
		record.Strategy,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入交互记录失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的若干条交互记录。
func (s *SQLInteractionRepository) ListLatest(ctx context.Context, limit int) ([]InteractionRecord, error) {
	rows, err := s.db.QueryContext(ctx, listInteractionsSQL, normaliseLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("查询交互记录失败: %w", err)
	}
	defer rows.Close()

	var records []InteractionRecord
	for rows.Next() {
		var (
			record  InteractionRecord
			success int64
		)
		if err := rows.Scan(&record.ID, &record.Sender, &record.Intent, &record.Confidence, &record.Amount, &record.Coin,
			&success, &record.TxHash, &record.Error, &record.Reply, &record.Strategy, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析交互记录失败: %w", err)
		}
		record.Success = success == 1
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历交互记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLInteractionRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Describe 返回仓库的简短描述，用于启动日志。
func Describe(repo InteractionRepository) string {
	switch r := repo.(type) {
	case *FileInteractionRepository:
		return "file:" + r.dataFile
	case *SQLInteractionRepository:
		return "mysql"
	case nil:
		return "disabled"
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", repo), "*")
	}
}
