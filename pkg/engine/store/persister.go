package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Persister 保存单个键下的状态快照
type Persister interface {
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, state State) error
}

// MemoryPersister 进程内保存，用于测试和不落盘的匿名模式
type MemoryPersister struct {
	mu    sync.Mutex
	state *State
	Saves int
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (p *MemoryPersister) Load(ctx context.Context) (State, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return State{}, false, nil
	}
	return p.state.clone(), true, nil
}

func (p *MemoryPersister) Save(ctx context.Context, state State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := state.clone()
	p.state = &s
	p.Saves++
	return nil
}

// localState 本地 SQLite 中的一行，Blob 为 State 的 JSON
type localState struct {
	Key       string `gorm:"primaryKey;size:64"`
	Blob      string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (localState) TableName() string {
	return "local_state"
}

// SQLitePersister 用 gorm + sqlite 在本地文件里保存状态
type SQLitePersister struct {
	DB  *gorm.DB
	Key string
}

const DefaultStateKey = "progression"

// OpenSQLite 打开（必要时创建）本地状态文件
func OpenSQLite(path, key string) (*SQLitePersister, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewSQLitePersister(db, key)
}

func NewSQLitePersister(db *gorm.DB, key string) (*SQLitePersister, error) {
	if key == "" {
		key = DefaultStateKey
	}
	if err := db.AutoMigrate(&localState{}); err != nil {
		return nil, err
	}
	return &SQLitePersister{DB: db, Key: key}, nil
}

func (p *SQLitePersister) Load(ctx context.Context) (State, bool, error) {
	var row localState
	err := p.DB.WithContext(ctx).Where("`key` = ?", p.Key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}

	var state State
	if err := json.Unmarshal([]byte(row.Blob), &state); err != nil {
		return State{}, false, err
	}
	return state, true, nil
}

func (p *SQLitePersister) Save(ctx context.Context, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	row := localState{Key: p.Key, Blob: string(raw), UpdatedAt: time.Now()}
	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "updated_at"}),
	}).Create(&row).Error
}

func (p *SQLitePersister) Close() error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
