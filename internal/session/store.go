package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"jobdeck/internal/api"
	"jobdeck/internal/model"
	"jobdeck/internal/notifier"
	"jobdeck/internal/storage"
)

// State 表示会话存储所处的阶段。
// 合法迁移：Unloaded → Loading → {Authenticated, Anonymous}；
// Authenticated → Anonymous（登出或恢复时发现损坏）；
// Anonymous → Authenticated（登录或注册成功）。
type State string

const (
	StateUnloaded      State = "unloaded"
	StateLoading       State = "loading"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

// Remote 抽象认证相关的远端调用，便于测试替换。
type Remote interface {
	Login(ctx context.Context, email, password string) (model.Session, error)
	Register(ctx context.Context, name, email, password string) (model.Session, error)
	UpdateProfile(ctx context.Context, update api.ProfileUpdate) (model.User, error)
}

// Slots 抽象持久化槽位读写。
type Slots interface {
	PutSlot(ctx context.Context, name, value string) error
	GetSlot(ctx context.Context, name string) (string, bool, error)
	DeleteSlots(ctx context.Context, names ...string) error
}

// Signer 接收请求签名能力的整体替换，本存储是它唯一的写入方。
type Signer interface {
	SetAuthorizer(a api.Authorizer)
}

// Store 管理进程内唯一的登录身份：持有当前用户、
// 负责登录/注册/登出调用、持久化会话令牌并向请求层附加令牌。
type Store struct {
	mu      sync.Mutex
	state   State
	session *model.Session

	remote Remote
	slots  Slots
	signer Signer
	hub    *notifier.Hub
	logger *log.Logger
}

// NewStore 创建会话存储，hub 与 logger 可为 nil。
func NewStore(remote Remote, slots Slots, signer Signer, hub *notifier.Hub, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stdout, "[session] ", log.LstdFlags)
	}
	return &Store{
		state:  StateUnloaded,
		remote: remote,
		slots:  slots,
		signer: signer,
		hub:    hub,
		logger: logger,
	}
}

// State 返回当前状态。
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current 返回当前会话副本，匿名态返回 false。
func (s *Store) Current() (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return model.Session{}, false
	}
	return *s.session, true
}

// Token 返回当前令牌，匿名态返回空串。
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.Token
}

// Restore 在启动时读取持久化的令牌与用户。两者齐备时直接信任，
// 不做服务端校验；用户数据无法解析视为会话损坏并清除。
// 无论结果如何，返回时存储一定处于已加载状态。
func (s *Store) Restore(ctx context.Context) State {
	s.mu.Lock()
	s.state = StateLoading
	s.mu.Unlock()

	token, user, ok := s.readSlots(ctx)
	if !ok {
		s.clearLocked(ctx)
		return s.State()
	}

	s.mu.Lock()
	s.session = &model.Session{Token: token, User: user}
	s.state = StateAuthenticated
	s.mu.Unlock()

	if s.signer != nil {
		s.signer.SetAuthorizer(api.BearerToken(token))
	}
	s.publishIdentity(user.ID)
	s.logger.Printf("session restored: user=%s", user.ID)
	return StateAuthenticated
}

// readSlots 读取并解析两个槽位，任一缺失或损坏都返回 false。
func (s *Store) readSlots(ctx context.Context) (string, model.User, bool) {
	token, hasToken, err := s.slots.GetSlot(ctx, storage.SlotToken)
	if err != nil {
		s.logger.Printf("read token slot error: %v", err)
		return "", model.User{}, false
	}
	rawUser, hasUser, err := s.slots.GetSlot(ctx, storage.SlotUser)
	if err != nil {
		s.logger.Printf("read user slot error: %v", err)
		return "", model.User{}, false
	}
	if !hasToken || !hasUser || strings.TrimSpace(token) == "" {
		return "", model.User{}, false
	}

	var user model.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		s.logger.Printf("corrupted user slot, clearing session: %v", err)
		return "", model.User{}, false
	}
	return token, user, true
}

// Login 用凭证换取会话，成功后持久化并附加令牌；
// 失败时保持原有会话不变，错误原样交给调用方展示。
func (s *Store) Login(ctx context.Context, email, password string) (model.User, error) {
	sess, err := s.remote.Login(ctx, email, password)
	if err != nil {
		return model.User{}, fmt.Errorf("login: %w", err)
	}
	s.apply(ctx, sess)
	s.logger.Printf("login ok: user=%s", sess.User.ID)
	return sess.User, nil
}

// Register 注册新账号，成功后的副作用与 Login 一致。
func (s *Store) Register(ctx context.Context, name, email, password string) (model.User, error) {
	sess, err := s.remote.Register(ctx, name, email, password)
	if err != nil {
		return model.User{}, fmt.Errorf("register: %w", err)
	}
	s.apply(ctx, sess)
	s.logger.Printf("register ok: user=%s", sess.User.ID)
	return sess.User, nil
}

// UpdateProfile 更新名称与邮箱，成功后把服务端返回的字段合入
// 当前用户并重写 user 槽位；令牌保持不变。
func (s *Store) UpdateProfile(ctx context.Context, name, email string) (model.User, error) {
	updated, err := s.remote.UpdateProfile(ctx, api.ProfileUpdate{Name: name, Email: email})
	if err != nil {
		return model.User{}, fmt.Errorf("update profile: %w", err)
	}

	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return model.User{}, fmt.Errorf("update profile: no active session")
	}
	if updated.ID != "" {
		s.session.User.ID = updated.ID
	}
	if updated.Name != "" {
		s.session.User.Name = updated.Name
	}
	if updated.Email != "" {
		s.session.User.Email = updated.Email
	}
	if !updated.CreatedAt.IsZero() {
		s.session.User.CreatedAt = updated.CreatedAt
	}
	merged := s.session.User
	s.mu.Unlock()

	s.persistUser(ctx, merged)
	return merged, nil
}

// Logout 清除持久化会话与内存状态并摘除令牌。
// 它只触碰本地状态，设计上总是成功。
func (s *Store) Logout(ctx context.Context) {
	s.clearLocked(ctx)
	s.logger.Printf("logged out")
}

// apply 接管一个服务端确认的会话：持久化、换入签名能力、广播身份变化。
func (s *Store) apply(ctx context.Context, sess model.Session) {
	if err := s.slots.PutSlot(ctx, storage.SlotToken, sess.Token); err != nil {
		s.logger.Printf("persist token error: %v", err)
	}
	s.persistUser(ctx, sess.User)

	s.mu.Lock()
	s.session = &sess
	s.state = StateAuthenticated
	s.mu.Unlock()

	if s.signer != nil {
		s.signer.SetAuthorizer(api.BearerToken(sess.Token))
	}
	s.publishIdentity(sess.User.ID)
}

func (s *Store) persistUser(ctx context.Context, user model.User) {
	data, err := json.Marshal(user)
	if err != nil {
		s.logger.Printf("marshal user error: %v", err)
		return
	}
	if err := s.slots.PutSlot(ctx, storage.SlotUser, string(data)); err != nil {
		s.logger.Printf("persist user error: %v", err)
	}
}

// clearLocked 擦除持久化槽位与内存会话并进入匿名态。
func (s *Store) clearLocked(ctx context.Context) {
	if err := s.slots.DeleteSlots(ctx, storage.SlotToken, storage.SlotUser); err != nil {
		s.logger.Printf("delete slots error: %v", err)
	}

	s.mu.Lock()
	hadSession := s.session != nil
	wasLoading := s.state == StateLoading
	s.session = nil
	s.state = StateAnonymous
	s.mu.Unlock()

	if s.signer != nil {
		s.signer.SetAuthorizer(nil)
	}
	if hadSession || wasLoading {
		s.publishIdentity("")
	}
}

func (s *Store) publishIdentity(userID string) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(notifier.Event{Kind: notifier.EventIdentityChanged, UserID: userID})
}
