package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
)

// ============= 配置 =============

// Config Worker Pool 配置
type Config struct {
	Workers          int  // worker 数量
	MaxBlockingTasks int  // 等待空闲 worker 的最大任务数，0 表示不限制
	Nonblocking      bool // 池满时 Submit 立即返回 ants.ErrPoolOverload 而不是阻塞
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:          6,
		MaxBlockingTasks: 0,
	}
}

// ============= 统计信息 =============

// Statistics 统计信息
type Statistics struct {
	mu sync.RWMutex

	Submitted int64 // 已提交
	Completed int64 // 已完成
	Failed    int64 // 失败（提交被拒绝后改由独立 goroutine 执行）
	Running   int64 // 运行中
}

func (s *Statistics) incSubmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Submitted++
}

func (s *Statistics) incRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Running++
}

func (s *Statistics) decRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Running--
}

func (s *Statistics) incCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Completed++
}

func (s *Statistics) incFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed++
}

// Get 返回统计快照
func (s *Statistics) Get() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Statistics{
		Submitted: s.Submitted,
		Completed: s.Completed,
		Failed:    s.Failed,
		Running:   s.Running,
	}
}

// ============= Worker Pool =============

// Pool 基于 ants 的有界 Worker Pool
type Pool struct {
	pool   *ants.Pool
	config *Config
	stats  *Statistics

	mu     sync.RWMutex
	closed bool

	logger *zap.Logger
}

// New 创建 Worker Pool
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("invalid worker count: %d", config.Workers)
	}

	opts := []ants.Option{
		ants.WithPanicHandler(func(err interface{}) {
			logger.Error("worker panic", zap.Any("error", err))
		}),
	}
	if config.Nonblocking {
		opts = append(opts, ants.WithNonblocking(true))
	} else if config.MaxBlockingTasks > 0 {
		opts = append(opts, ants.WithMaxBlockingTasks(config.MaxBlockingTasks))
	}

	antsPool, err := ants.NewPool(config.Workers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	return &Pool{
		pool:   antsPool,
		config: config,
		stats:  &Statistics{},
		logger: logger,
	}, nil
}

// Submit 提交任务
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.stats.incSubmitted()
	return p.pool.Submit(func() {
		p.stats.incRunning()
		defer func() {
			p.stats.decRunning()
			p.stats.incCompleted()
		}()
		task()
	})
}

// Run 并发执行 fn(0..n-1) 并等待全部完成，同一次调用最多 limit 个任务同时运行（limit <= 0 表示不限制）。
// 池拒绝的任务改为在独立 goroutine 中执行，仍受 limit 约束，保证每个下标都会被处理。
// ctx 结束后不再启动新任务，未启动的下标不会调用 fn；已启动的 fn 需要自行观察 ctx。
func (p *Pool) Run(ctx context.Context, n, limit int, fn func(ctx context.Context, i int)) {
	if limit <= 0 || limit > n {
		limit = n
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			p.logger.Debug("context done, skipping remaining tasks", zap.Int("skipped", n-i), zap.Error(ctx.Err()))
			break
		}

		idx := i
		wg.Add(1)
		task := func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			fn(ctx, idx)
		}
		if err := p.Submit(task); err != nil {
			p.stats.incFailed()
			p.logger.Debug("task rejected, running on dedicated goroutine", zap.Int("index", idx), zap.Error(err))
			go task()
		}
	}
	wg.Wait()
}

// Cap 获取 worker 容量
func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Stats 获取统计信息
func (p *Pool) Stats() Statistics {
	return p.stats.Get()
}

// Shutdown 关闭
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.pool.Release()
}
