package cli

import (
	"context"
	"errors"
	"fmt"
	"learnquest_backend/pkg/engine"
	"learnquest_backend/pkg/engine/remote"
	"learnquest_backend/pkg/engine/store"
	"learnquest_backend/pkg/ledger"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultConfigName = "progressctl.yaml"

// env 一次命令执行所需的全部依赖
type env struct {
	v         *viper.Viper
	client    *remote.HTTPClient
	persister *store.SQLitePersister
	engine    *engine.Engine
	log       *zap.Logger
}

func loadViper(opts *RootOptions) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("state", "progressctl.db")
	v.SetDefault("timeout", "15s")
	v.SetDefault("retry_delay", "500ms")

	v.SetEnvPrefix("PROGRESSCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("progressctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// deviceTimezone 配置优先，否则取 TZ 环境变量；无法确定时为空，服务端按 UTC
func deviceTimezone(v *viper.Viper) string {
	tz := strings.TrimSpace(v.GetString("timezone"))
	if tz == "" {
		tz = strings.TrimSpace(os.Getenv("TZ"))
	}
	if tz == "" || ledger.LoadTimezone(tz).String() != tz {
		return ""
	}
	return tz
}

func openEnv(ctx context.Context, opts *RootOptions) (*env, error) {
	v, err := loadViper(opts)
	if err != nil {
		return nil, err
	}

	log := zap.NewNop()
	if opts.Verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			log = l
		}
	}

	client := remote.NewHTTPClient(v.GetString("server"), v.GetDuration("timeout"), log)
	client.SetToken(v.GetString("token"))

	persister, err := store.OpenSQLite(v.GetString("state"), store.DefaultStateKey)
	if err != nil {
		return nil, fmt.Errorf("open local state: %w", err)
	}
	st, err := store.Open(ctx, persister, store.Options{Logger: log})
	if err != nil {
		persister.Close()
		return nil, err
	}

	retryDelay := v.GetDuration("retry_delay")
	if retryDelay <= 0 {
		retryDelay = -1
	}
	eng, err := engine.New(engine.Options{
		Store:              st,
		Remote:             client,
		Connectivity:       client,
		Logger:             log,
		EnergyPollInterval: v.GetDuration("energy_poll"),
		DeviceTimezone:     deviceTimezone(v),
		RetryDelay:         retryDelay,
	})
	if err != nil {
		persister.Close()
		return nil, err
	}

	return &env{v: v, client: client, persister: persister, engine: eng, log: log}, nil
}

func (e *env) Close() {
	_ = e.log.Sync()
	if err := e.persister.Close(); err != nil {
		e.log.Warn("close local state failed", zap.Error(err))
	}
}

// saveCredentials 写回配置文件，下次命令直接携带令牌
func (e *env) saveCredentials(token string, userID uint) error {
	e.v.Set("token", token)
	e.v.Set("user_id", userID)
	path := e.v.ConfigFileUsed()
	if path == "" {
		path = defaultConfigName
	}
	if err := e.v.WriteConfigAs(path); err != nil {
		return err
	}
	// 文件里有令牌
	return os.Chmod(path, 0o600)
}

// requireAccount 需要服务端确认的命令在匿名状态下直接报错
func (e *env) requireAccount() error {
	st := e.engine.Store.Snapshot()
	if !st.IsAuthenticated || st.IsAnonymous || e.client.Token() == "" {
		return errors.New("not logged in: run `progressctl login` first")
	}
	return nil
}

// withEnv 打开依赖、执行、关闭
func withEnv(opts *RootOptions, fn func(ctx context.Context, e *env) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	e, err := openEnv(ctx, opts)
	if err != nil {
		return err
	}
	defer e.Close()
	return describe(fn(ctx, e))
}

// describe 把引擎错误转成终端用户能理解的提示
func describe(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, remote.ErrNetworkUnavailable):
		return fmt.Errorf("service unreachable, your progress is saved locally; try again when online (%w)", err)
	case errors.Is(err, remote.ErrUnauthorized):
		return fmt.Errorf("session expired, please log in again (%w)", err)
	case errors.Is(err, engine.ErrNoEnergy):
		return fmt.Errorf("out of energy, wait for it to regenerate (%w)", err)
	case errors.Is(err, engine.ErrAnonymous):
		return fmt.Errorf("this needs an account, run `progressctl login` first (%w)", err)
	}
	return err
}
