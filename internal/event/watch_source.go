package event

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/aihub/knowledge-sync/internal/logger"
)

// debounce window for write bursts on the same file
var writeSettleDelay = 200 * time.Millisecond

// WatchSource 基于fsnotify的本地目录事件源
//
// 监听目录下的文件创建、写入和删除，转换为变更事件。
// document_id使用文件的绝对路径，重命名视为删除加创建。
// 写入事件按文件去抖，每个文件一个定时器，事件循环不被阻塞。
type WatchSource struct {
	watcher *fsnotify.Watcher
	dir     string

	mu      sync.Mutex
	pending map[string]*pendingUpsert
}

// pendingUpsert 等待写入稳定的文件
type pendingUpsert struct {
	timer *time.Timer
	typ   EventType
}

// NewWatchSource 创建目录监听事件源
func NewWatchSource(dir string) (*WatchSource, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch path %s: %w", dir, err)
	}

	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("watch path %s is not accessible: %w", absDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", absDir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(absDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", absDir, err)
	}

	logger.Info("file watch source initialized", zap.String("dir", absDir))
	return &WatchSource{
		watcher: watcher,
		dir:     absDir,
		pending: make(map[string]*pendingUpsert),
	}, nil
}

// Run 先回放目录内已有文件，再持续监听变更，直到ctx取消
func (s *WatchSource) Run(ctx context.Context, handler Handler) error {
	if err := s.replayExisting(ctx, handler); err != nil {
		return err
	}
	defer s.cancelAllPending()

	for {
		select {
		case <-ctx.Done():
			logger.Info("file watch source stopping")
			return ctx.Err()

		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.dispatch(ctx, ev, handler)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("file watcher error", zap.Error(err))
		}
	}
}

// Close 停止监听
func (s *WatchSource) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// replayExisting 把启动时目录里已有的文件当作创建事件处理
func (s *WatchSource) replayExisting(ctx context.Context, handler Handler) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list watch dir %s: %w", s.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || isHidden(entry.Name()) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		s.emitUpsert(ctx, path, EventCreated, handler)
	}
	return nil
}

func (s *WatchSource) dispatch(ctx context.Context, ev fsnotify.Event, handler Handler) {
	name := filepath.Base(ev.Name)
	if isHidden(name) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		// 写入可能尚未完成，等待稳定后读取
		s.scheduleUpsert(ctx, ev.Name, EventCreated, handler)

	case ev.Op.Has(fsnotify.Write):
		s.scheduleUpsert(ctx, ev.Name, EventModified, handler)

	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		// 先取消未触发的上送，保证删除不被晚到的写入覆盖
		s.cancelPending(ev.Name)
		evt := ChangeEvent{
			Type:       EventDeleted,
			DocumentID: ev.Name,
			Name:       name,
		}
		if err := handler(ctx, evt); err != nil {
			logger.Error("failed to handle file removal",
				zap.String("document_id", ev.Name), zap.Error(err))
		}
	}
}

// scheduleUpsert 为单个文件安排去抖后的上送，连续写入重置等待窗口
func (s *WatchSource) scheduleUpsert(ctx context.Context, path string, typ EventType, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.pending[path]; ok {
		// 创建后的连续写入仍作为创建上送
		if prev.typ == EventCreated {
			typ = EventCreated
		}
		prev.timer.Stop()
	}

	p := &pendingUpsert{typ: typ}
	p.timer = time.AfterFunc(writeSettleDelay, func() {
		s.mu.Lock()
		if s.pending[path] == p {
			delete(s.pending, path)
		}
		s.mu.Unlock()
		s.emitUpsert(ctx, path, p.typ, handler)
	})
	s.pending[path] = p
}

func (s *WatchSource) cancelPending(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[path]; ok {
		p.timer.Stop()
		delete(s.pending, path)
	}
}

func (s *WatchSource) cancelAllPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, path)
	}
}

func (s *WatchSource) emitUpsert(ctx context.Context, path string, typ EventType, handler Handler) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read watched file",
			zap.String("path", path), zap.Error(err))
		return
	}

	evt := ChangeEvent{
		Type:       typ,
		DocumentID: path,
		Name:       filepath.Base(path),
		Payload:    payload,
	}
	if err := handler(ctx, evt); err != nil {
		logger.Error("failed to handle file change",
			zap.String("document_id", path),
			zap.String("type", string(typ)), zap.Error(err))
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}
