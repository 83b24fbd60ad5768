package service

import (
	"learnquest_backend/internal/config"
	"sync/atomic"
)

// Tunables 成长参数的运行时快照，配置热更新时整体替换
type Tunables struct {
	p atomic.Pointer[config.ProgressionConfig]
}

func NewTunables(cfg config.ProgressionConfig) *Tunables {
	t := &Tunables{}
	t.Update(cfg)
	return t
}

func (t *Tunables) Get() config.ProgressionConfig {
	return *t.p.Load()
}

func (t *Tunables) Update(cfg config.ProgressionConfig) {
	c := cfg
	t.p.Store(&c)
}
