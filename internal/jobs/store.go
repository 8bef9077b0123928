package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"jobdeck/internal/model"
	"jobdeck/internal/notifier"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoSession 表示当前没有已认证身份，操作被拒绝。
	ErrNoSession = errors.New("no authenticated session")
	// ErrSessionChanged 表示响应到达时身份已切换，结果被丢弃。
	ErrSessionChanged = errors.New("session changed before response applied")
)

// Remote 抽象记录与统计相关的远端调用，便于测试替换。
type Remote interface {
	ListJobs(ctx context.Context) ([]model.Job, error)
	CreateJob(ctx context.Context, draft model.Job) (model.Job, error)
	UpdateJob(ctx context.Context, id string, job model.Job) (model.Job, error)
	DeleteJob(ctx context.Context, id string) error
	Analytics(ctx context.Context) (model.Analytics, error)
}

// Cache 抽象离线缓存，允许为 nil（不做预热）。
type Cache interface {
	SaveJobCache(ctx context.Context, userID string, jobs []model.Job, snapshot *model.Analytics) error
	LoadJobCache(ctx context.Context, userID string) ([]model.Job, *model.Analytics, bool, error)
	DeleteJobCache(ctx context.Context, userID string) error
}

// Config 控制加载与后台刷新的超时。
type Config struct {
	LoadTimeout    string `yaml:"load_timeout" json:"load_timeout"`
	RefreshTimeout string `yaml:"refresh_timeout" json:"refresh_timeout"`
}

// Store 持有当前身份的本地记录集合与统计快照，并与远端保持同步。
// 一致性约定：每次写操作只有在服务端确认后才落到本地，
// 且使用服务端返回的权威记录，本地不做任何推测性修改。
type Store struct {
	remote Remote
	cache  Cache
	hub    *notifier.Hub
	logger *log.Logger

	loadTimeout    time.Duration
	refreshTimeout time.Duration

	mu        sync.Mutex
	gen       uint64
	userID    string
	jobs      []model.Job
	analytics *model.Analytics

	refreshMu     sync.Mutex
	refreshDirty  bool
	refreshActive bool
}

// NewStore 创建 Store，cache、hub 与 logger 均可为 nil。
func NewStore(remote Remote, cache Cache, hub *notifier.Hub, cfg Config, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stdout, "[jobs] ", log.LstdFlags)
	}
	loadTimeout := 15 * time.Second
	if cfg.LoadTimeout != "" {
		if d, err := time.ParseDuration(cfg.LoadTimeout); err == nil && d > 0 {
			loadTimeout = d
		}
	}
	refreshTimeout := 10 * time.Second
	if cfg.RefreshTimeout != "" {
		if d, err := time.ParseDuration(cfg.RefreshTimeout); err == nil && d > 0 {
			refreshTimeout = d
		}
	}
	return &Store{
		remote:         remote,
		cache:          cache,
		hub:            hub,
		logger:         logger,
		loadTimeout:    loadTimeout,
		refreshTimeout: refreshTimeout,
	}
}

// HandleEvent 消费会话层的身份事件：进入已认证态时做一次初始加载，
// 退出时丢弃全部本地状态。其余事件类别被忽略。
func (s *Store) HandleEvent(e notifier.Event) {
	if e.Kind != notifier.EventIdentityChanged {
		return
	}
	if e.UserID == "" {
		s.signOut()
		return
	}
	s.signIn(e.UserID)
}

// signIn 绑定新身份：先用离线缓存预热，再并发拉取记录与快照。
func (s *Store) signIn(userID string) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.userID = userID
	s.jobs = nil
	s.analytics = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.loadTimeout)
	defer cancel()

	s.warmFromCache(ctx, gen, userID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.List(gctx); err != nil {
			return fmt.Errorf("initial list: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// 快照拉取失败不影响初始记录加载。
		if err := s.RefreshAnalytics(gctx); err != nil {
			s.logger.Printf("initial analytics: %v", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Printf("initial load: %v", err)
	}
}

// warmFromCache 把上次被确认的集合放进本地状态，等服务端结果整体替换。
func (s *Store) warmFromCache(ctx context.Context, gen uint64, userID string) {
	if s.cache == nil {
		return
	}
	jobs, snapshot, ok, err := s.cache.LoadJobCache(ctx, userID)
	if err != nil {
		s.logger.Printf("load cache: %v", err)
		return
	}
	if !ok {
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.jobs = jobs
	s.analytics = snapshot
	s.mu.Unlock()

	s.publish(notifier.EventJobsChanged, userID)
	if snapshot != nil {
		s.publish(notifier.EventAnalyticsChanged, userID)
	}
}

// signOut 丢弃本地集合与快照并清除该身份的离线缓存，
// 任何此后到达的旧响应都会因世代不匹配被丢弃。
func (s *Store) signOut() {
	s.mu.Lock()
	s.gen++
	userID := s.userID
	s.userID = ""
	s.jobs = nil
	s.analytics = nil
	s.mu.Unlock()

	if s.cache != nil && userID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), s.loadTimeout)
		defer cancel()
		if err := s.cache.DeleteJobCache(ctx, userID); err != nil {
			s.logger.Printf("delete cache: %v", err)
		}
	}
	s.publish(notifier.EventJobsChanged, "")
	s.publish(notifier.EventAnalyticsChanged, "")
}

// sessionGen 返回当前世代与身份，匿名态返回 false。
func (s *Store) sessionGen() (uint64, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" {
		return 0, "", false
	}
	return s.gen, s.userID, true
}

// List 拉取全量记录并整体替换本地集合（不做合并）。
// 失败时保留先前的集合并返回错误。
func (s *Store) List(ctx context.Context) ([]model.Job, error) {
	gen, userID, ok := s.sessionGen()
	if !ok {
		return nil, ErrNoSession
	}

	fetched, err := s.remote.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil, ErrSessionChanged
	}
	s.jobs = fetched
	s.mu.Unlock()

	s.saveCache(ctx, gen, userID)
	s.publish(notifier.EventJobsChanged, userID)
	return cloneJobs(fetched), nil
}

// Create 提交草稿；服务端确认后把返回的权威记录前插到本地集合，
// 随后触发一次尽力而为的快照刷新。失败时本地集合不变。
func (s *Store) Create(ctx context.Context, draft model.Job) (model.Job, error) {
	if err := draft.Validate(); err != nil {
		return model.Job{}, fmt.Errorf("validate draft: %w", err)
	}
	gen, userID, ok := s.sessionGen()
	if !ok {
		return model.Job{}, ErrNoSession
	}

	created, err := s.remote.CreateJob(ctx, draft)
	if err != nil {
		return model.Job{}, fmt.Errorf("create job: %w", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return model.Job{}, ErrSessionChanged
	}
	s.jobs = append([]model.Job{created}, s.jobs...)
	s.mu.Unlock()

	s.saveCache(ctx, gen, userID)
	s.publish(notifier.EventJobsChanged, userID)
	s.triggerRefresh()
	return created, nil
}

// Update 用完整记录覆盖指定 ID（不支持部分更新），
// 成功后用服务端返回的记录原位替换本地条目，集合顺序不变。
func (s *Store) Update(ctx context.Context, id string, record model.Job) (model.Job, error) {
	if err := record.Validate(); err != nil {
		return model.Job{}, fmt.Errorf("validate record: %w", err)
	}
	gen, userID, ok := s.sessionGen()
	if !ok {
		return model.Job{}, ErrNoSession
	}

	updated, err := s.remote.UpdateJob(ctx, id, record)
	if err != nil {
		return model.Job{}, fmt.Errorf("update job %s: %w", id, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return model.Job{}, ErrSessionChanged
	}
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			s.jobs[i] = updated
			break
		}
	}
	s.mu.Unlock()

	s.saveCache(ctx, gen, userID)
	s.publish(notifier.EventJobsChanged, userID)
	s.triggerRefresh()
	return updated, nil
}

// Delete 请求远端删除；确认后从本地集合移除对应条目。
// 失败时本地集合不变，也不触发快照刷新。
func (s *Store) Delete(ctx context.Context, id string) error {
	gen, userID, ok := s.sessionGen()
	if !ok {
		return ErrNoSession
	}

	if err := s.remote.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSessionChanged
	}
	kept := s.jobs[:0:0]
	for _, job := range s.jobs {
		if job.ID != id {
			kept = append(kept, job)
		}
	}
	s.jobs = kept
	s.mu.Unlock()

	s.saveCache(ctx, gen, userID)
	s.publish(notifier.EventJobsChanged, userID)
	s.triggerRefresh()
	return nil
}

// RefreshAnalytics 拉取统计快照并整体替换。
func (s *Store) RefreshAnalytics(ctx context.Context) error {
	gen, userID, ok := s.sessionGen()
	if !ok {
		return ErrNoSession
	}

	snapshot, err := s.remote.Analytics(ctx)
	if err != nil {
		return fmt.Errorf("fetch analytics: %w", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSessionChanged
	}
	s.analytics = &snapshot
	s.mu.Unlock()

	s.saveCache(ctx, gen, userID)
	s.publish(notifier.EventAnalyticsChanged, userID)
	return nil
}

// triggerRefresh 在后台发起一次尽力而为的快照刷新。
// 同一时间只有一个刷新协程；密集触发会被合并，
// 刷新失败只记录日志，留给下一次写操作再触发。
func (s *Store) triggerRefresh() {
	s.refreshMu.Lock()
	s.refreshDirty = true
	if s.refreshActive {
		s.refreshMu.Unlock()
		return
	}
	s.refreshActive = true
	s.refreshMu.Unlock()

	go func() {
		for {
			s.refreshMu.Lock()
			if !s.refreshDirty {
				s.refreshActive = false
				s.refreshMu.Unlock()
				return
			}
			s.refreshDirty = false
			s.refreshMu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
			if err := s.RefreshAnalytics(ctx); err != nil {
				s.logger.Printf("background analytics refresh: %v", err)
			}
			cancel()
		}
	}()
}

// Jobs 返回本地集合的副本。
func (s *Store) Jobs() []model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneJobs(s.jobs)
}

// Analytics 返回快照副本，尚未拉取到时返回 false。
func (s *Store) Analytics() (model.Analytics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analytics == nil {
		return model.Analytics{}, false
	}
	return *s.analytics, true
}

// Filter 返回指定状态下、公司或职位名称包含关键词的记录，
// 供看板列与搜索框使用。status 为空串表示不过滤状态。
func (s *Store) Filter(status model.Status, term string) []model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		if !job.MatchesSearch(term) {
			continue
		}
		matched = append(matched, job)
	}
	return matched
}

// saveCache 把当前被确认的集合与快照写入离线缓存。
func (s *Store) saveCache(ctx context.Context, gen uint64, userID string) {
	if s.cache == nil {
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	jobs := cloneJobs(s.jobs)
	var snapshot *model.Analytics
	if s.analytics != nil {
		copySnap := *s.analytics
		snapshot = &copySnap
	}
	s.mu.Unlock()

	if err := s.cache.SaveJobCache(ctx, userID, jobs, snapshot); err != nil {
		s.logger.Printf("save cache: %v", err)
	}
}

func (s *Store) publish(kind notifier.EventKind, userID string) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(notifier.Event{Kind: kind, UserID: userID})
}

func cloneJobs(jobs []model.Job) []model.Job {
	if jobs == nil {
		return nil
	}
	out := make([]model.Job, len(jobs))
	copy(out, jobs)
	return out
}
