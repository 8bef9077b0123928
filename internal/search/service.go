package search

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"jobdeck/internal/model"

	"golang.org/x/time/rate"
)

// Remote 抽象外部职位搜索的远端调用，便于测试替换。
type Remote interface {
	SearchListings(ctx context.Context, query string) ([]model.Listing, int, error)
	Recommendations(ctx context.Context) ([]model.Listing, error)
}

// Config 控制对后端搜索端点的限流。
type Config struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// Service 负责外部职位搜索与推荐。
// 搜索结果只作为瞬态状态保存，不做任何本地持久化；
// 搜索失败时结果列表被清空且错误交给调用方展示。
type Service struct {
	remote  Remote
	limiter *rate.Limiter
	logger  *log.Logger

	mu       sync.Mutex
	listings []model.Listing
}

// NewService 创建搜索服务。
func NewService(remote Remote, cfg Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stdout, "[search] ", log.LstdFlags)
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 3
	}
	return &Service{
		remote:  remote,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// Search 按关键词搜索外部职位，返回结果与服务端计数。
func (s *Service) Search(ctx context.Context, query string) ([]model.Listing, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, 0, fmt.Errorf("query required")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	listings, count, err := s.remote.SearchListings(ctx, query)
	if err != nil {
		s.mu.Lock()
		s.listings = nil
		s.mu.Unlock()
		return nil, 0, fmt.Errorf("search %q: %w", query, err)
	}

	s.mu.Lock()
	s.listings = listings
	s.mu.Unlock()
	s.logger.Printf("search %q: %d listings (count=%d)", query, len(listings), count)
	return cloneListings(listings), count, nil
}

// Recommendations 拉取基于投递历史的推荐，结果不进入搜索结果集。
func (s *Service) Recommendations(ctx context.Context) ([]model.Listing, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	listings, err := s.remote.Recommendations(ctx)
	if err != nil {
		return nil, fmt.Errorf("recommendations: %w", err)
	}
	return listings, nil
}

// Listings 返回最近一次成功搜索的结果副本。
func (s *Service) Listings() []model.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneListings(s.listings)
}

func cloneListings(listings []model.Listing) []model.Listing {
	if listings == nil {
		return nil
	}
	out := make([]model.Listing, len(listings))
	copy(out, listings)
	return out
}
