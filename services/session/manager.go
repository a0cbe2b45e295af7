package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bromato/bromato/locator"
	"github.com/bromato/bromato/models"
	"github.com/bromato/bromato/pkg/logger"
	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
)

// PageOpener 打开新页面，playwright.BrowserContext 满足该接口
type PageOpener interface {
	NewPage() (playwright.Page, error)
}

// Manager 会话管理器
type Manager struct {
	opener PageOpener
	store  Store
	engine *locator.Engine
	board  *pasteboard

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager 创建会话管理器，setInputFiles 的文件暂存到 uploadDir
func NewManager(opener PageOpener, store Store, uploadDir string) *Manager {
	return &Manager{
		opener:   opener,
		store:    store,
		engine:   locator.NewEngine(locator.StageUploads(uploadDir)).WithChecks(locator.CheckUploads),
		board:    &pasteboard{clip: &systemClipboard{}},
		sessions: make(map[string]*Session),
	}
}

// WithClipboard 替换 native_paste 使用的剪贴板，需在创建会话前调用
func (m *Manager) WithClipboard(c Clipboard) *Manager {
	m.board.clip = c
	return m
}

// Create 打开一个新页面作为会话
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	page, err := m.opener.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	record := &models.SessionRecord{ID: uuid.NewString()}
	if err := m.store.SaveSession(record); err != nil {
		page.Close()
		return nil, fmt.Errorf("save session: %w", err)
	}

	s := &Session{
		ID:     record.ID,
		page:   page,
		store:  m.store,
		engine: m.engine,
		board:  m.board,
		record: record,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	logger.Info(ctx, "Session %s created", s.ID)
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List 返回所有存活会话的记录
func (m *Manager) List() []models.SessionRecord {
	m.mu.RLock()
	records := make([]models.SessionRecord, 0, len(m.sessions))
	for _, s := range m.sessions {
		s.mu.Lock()
		records = append(records, *s.record)
		s.mu.Unlock()
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records
}

// Destroy 关闭会话并删除其持久化数据
func (m *Manager) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	if err := s.close(); err != nil {
		logger.Warn(ctx, "Session %s: failed to close page: %v", id, err)
	}
	if err := m.store.DeleteSession(id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	logger.Info(ctx, "Session %s destroyed", id)
	return nil
}

// DestroyAll 关闭全部会话，关机时调用
func (m *Manager) DestroyAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Destroy(ctx, id); err != nil {
			logger.Warn(ctx, "Failed to destroy session %s: %v", id, err)
		}
	}
}
