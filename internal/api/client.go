package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"jobdeck/internal/model"
)

// Config 定义远端 API 配置。
type Config struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

// Authorizer 为出站请求附加认证信息，是一个可整体替换的签名能力。
// 会话层是它唯一的写入方：登录后换入携带令牌的实现，登出后换回 nil。
type Authorizer func(*http.Request)

// BearerToken 返回附加 Bearer 令牌的 Authorizer。
func BearerToken(token string) Authorizer {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// APIError 表示服务端返回的业务错误（非 2xx 响应）。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// Client 封装求职追踪后端的 HTTP/JSON 调用。
type Client struct {
	baseURL string
	client  *http.Client
	auth    atomic.Pointer[Authorizer]
}

// NewClient 创建 Client，baseURL 形如 https://api.example.com/api。
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := 15 * time.Second
		if cfg.Timeout != "" {
			if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
				timeout = d
			}
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  httpClient,
	}
}

// SetAuthorizer 原子替换请求签名能力，传入 nil 表示匿名。
func (c *Client) SetAuthorizer(a Authorizer) {
	if a == nil {
		c.auth.Store(nil)
		return
	}
	c.auth.Store(&a)
}

// Credentials 表示登录请求体。
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration 表示注册请求体。
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate 表示资料更新请求体，仅允许改名称与邮箱。
type ProfileUpdate struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// authResponse 的用户字段与令牌平铺在同一层返回。
type authResponse struct {
	Token string `json:"token"`
	model.User
}

// Login 用邮箱密码换取会话。
func (c *Client) Login(ctx context.Context, email, password string) (model.Session, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", Credentials{Email: email, Password: password}, &resp); err != nil {
		return model.Session{}, err
	}
	return model.Session{Token: resp.Token, User: resp.User}, nil
}

// Register 注册新账号并直接返回会话。
func (c *Client) Register(ctx context.Context, name, email, password string) (model.Session, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", Registration{Name: name, Email: email, Password: password}, &resp); err != nil {
		return model.Session{}, err
	}
	return model.Session{Token: resp.Token, User: resp.User}, nil
}

// UpdateProfile 更新当前用户的名称与邮箱，返回服务端的最新用户字段。
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodPut, "/auth/update-profile", update, &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// ListJobs 返回当前用户的全部求职记录。
func (c *Client) ListJobs(ctx context.Context) ([]model.Job, error) {
	var jobs []model.Job
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CreateJob 提交草稿记录，返回带服务端 ID 与时间戳的记录。
func (c *Client) CreateJob(ctx context.Context, draft model.Job) (model.Job, error) {
	var created model.Job
	if err := c.do(ctx, http.MethodPost, "/jobs", draft, &created); err != nil {
		return model.Job{}, err
	}
	return created, nil
}

// UpdateJob 以完整记录覆盖指定 ID，不支持部分更新。
func (c *Client) UpdateJob(ctx context.Context, id string, job model.Job) (model.Job, error) {
	var updated model.Job
	if err := c.do(ctx, http.MethodPut, "/jobs/"+url.PathEscape(id), job, &updated); err != nil {
		return model.Job{}, err
	}
	return updated, nil
}

// DeleteJob 删除指定记录。
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(id), nil, nil)
}

// Analytics 拉取服务端统计快照。
func (c *Client) Analytics(ctx context.Context) (model.Analytics, error) {
	var snapshot model.Analytics
	if err := c.do(ctx, http.MethodGet, "/jobs/analytics", nil, &snapshot); err != nil {
		return model.Analytics{}, err
	}
	return snapshot, nil
}

type searchResponse struct {
	Data  []model.Listing `json:"data"`
	Count int             `json:"count"`
}

// SearchListings 按关键词搜索外部职位，返回结果与服务端计数。
func (c *Client) SearchListings(ctx context.Context, query string) ([]model.Listing, int, error) {
	path := "/job-search?query=" + url.QueryEscape(query)
	var resp searchResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Data, resp.Count, nil
}

// Recommendations 拉取基于历史投递的职位推荐。
func (c *Client) Recommendations(ctx context.Context) ([]model.Listing, error) {
	var resp searchResponse
	if err := c.do(ctx, http.MethodGet, "/job-search/recommendations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth := c.auth.Load(); auth != nil {
		(*auth)(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return normalizeError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// normalizeError 提取后端错误体中的 message 字段，缺失时退回状态码描述。
func normalizeError(status int, body []byte) error {
	var payload struct {
		Message string `json:"message"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload.Message = ""
		}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(payload.Message)}
}
