package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jobdeck/internal/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 会话持久化使用的固定槽位名。
const (
	SlotToken = "token"
	SlotUser  = "user"
)

// Store 封装 SQLite 本地库，保存会话槽位与按用户划分的离线缓存。
type Store struct {
	db *gorm.DB
}

// slot 是一个命名的持久化槽位，进程重启后仍然可读。
type slot struct {
	Name      string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

// jobCache 保存某个用户最近一次被服务端确认的记录集合与统计快照，
// 用于登录后在首次拉取完成前预热本地状态。
type jobCache struct {
	UserID    string `gorm:"primaryKey"`
	Jobs      datatypes.JSON
	Snapshot  datatypes.JSON
	UpdatedAt time.Time
}

// NewStore 创建 Store 并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&slot{}, &jobCache{}); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// PutSlot 写入槽位，已存在则覆盖。
func (s *Store) PutSlot(ctx context.Context, name, value string) error {
	row := slot{Name: name, Value: value}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row)
	if tx.Error != nil {
		return fmt.Errorf("put slot %s: %w", name, tx.Error)
	}
	return nil
}

// GetSlot 读取槽位，第二个返回值指示槽位是否存在。
func (s *Store) GetSlot(ctx context.Context, name string) (string, bool, error) {
	var row slot
	err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get slot %s: %w", name, err)
	}
	return row.Value, true, nil
}

// DeleteSlots 删除给定槽位，槽位不存在不算错误。
func (s *Store) DeleteSlots(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("name IN ?", names).Delete(&slot{}).Error; err != nil {
		return fmt.Errorf("delete slots: %w", err)
	}
	return nil
}

// SaveJobCache 覆盖写入某用户的离线缓存，snapshot 允许为 nil。
func (s *Store) SaveJobCache(ctx context.Context, userID string, jobs []model.Job, snapshot *model.Analytics) error {
	if userID == "" {
		return fmt.Errorf("user id required")
	}

	jobsJSON, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("marshal jobs: %w", err)
	}
	row := jobCache{UserID: userID, Jobs: jobsJSON}
	if snapshot != nil {
		snapJSON, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		row.Snapshot = snapJSON
	}

	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"jobs", "snapshot", "updated_at"}),
	}).Create(&row)
	if tx.Error != nil {
		return fmt.Errorf("save job cache: %w", tx.Error)
	}
	return nil
}

// LoadJobCache 读取某用户的离线缓存，第三个返回值指示缓存是否存在。
func (s *Store) LoadJobCache(ctx context.Context, userID string) ([]model.Job, *model.Analytics, bool, error) {
	var row jobCache
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("load job cache: %w", err)
	}

	var jobs []model.Job
	if len(row.Jobs) > 0 {
		if err := json.Unmarshal(row.Jobs, &jobs); err != nil {
			return nil, nil, false, fmt.Errorf("unmarshal cached jobs: %w", err)
		}
	}
	var snapshot *model.Analytics
	if len(row.Snapshot) > 0 {
		snapshot = &model.Analytics{}
		if err := json.Unmarshal(row.Snapshot, snapshot); err != nil {
			return nil, nil, false, fmt.Errorf("unmarshal cached snapshot: %w", err)
		}
	}
	return jobs, snapshot, true, nil
}

// DeleteJobCache 清除某用户的离线缓存。
func (s *Store) DeleteJobCache(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&jobCache{}).Error; err != nil {
		return fmt.Errorf("delete job cache: %w", err)
	}
	return nil
}
