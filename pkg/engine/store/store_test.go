package store

import (
	"context"
	"fmt"
	"learnquest_backend/pkg/ledger"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

func openMemory(t *testing.T) (*Store, *MemoryPersister) {
	t.Helper()
	p := NewMemoryPersister()
	s, err := Open(context.Background(), p, Options{Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	return s, p
}

func TestOpenStartsFullAndAnonymous(t *testing.T) {
	s, _ := openMemory(t)
	st := s.Snapshot()
	assert.Equal(t, ledger.DefaultMaxEnergy, st.CurrentEnergy)
	assert.Equal(t, ledger.DefaultMaxEnergy, st.MaxEnergy)
	assert.True(t, st.IsAnonymous)
	assert.Equal(t, 1, st.Level())
}

func TestEnergyStaysWithinBounds(t *testing.T) {
	s, _ := openMemory(t)

	s.SetEnergy(3, 6, fixedNow)
	removed := s.RemoveLives(5)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 0, s.Snapshot().CurrentEnergy)

	added := s.AddLives(10)
	assert.Equal(t, 6, added)
	assert.Equal(t, 6, s.Snapshot().CurrentEnergy)

	ops := []int{-2, 4, -9, 1, 1, -1, 7, -3}
	for _, op := range ops {
		if op < 0 {
			s.RemoveLives(-op)
		} else {
			s.AddLives(op)
		}
		st := s.Snapshot()
		assert.GreaterOrEqual(t, st.CurrentEnergy, 0)
		assert.LessOrEqual(t, st.CurrentEnergy, st.MaxEnergy)
	}
}

func TestXPIsMonotonicAndLevelDerived(t *testing.T) {
	s, p := openMemory(t)

	require.NoError(t, s.AddXP(90))
	assert.Equal(t, 1, s.Level())
	require.NoError(t, s.AddXP(10))
	assert.Equal(t, 2, s.Level())
	assert.ErrorIs(t, s.AddXP(-5), ErrNegativeXP)
	assert.Equal(t, int64(100), s.Snapshot().TotalXP)

	saved, ok, err := p.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), saved.TotalXP)
	assert.Equal(t, 2, saved.CurrentLevel)
}

func TestPendingXPSettlesAgainstServerValue(t *testing.T) {
	s, _ := openMemory(t)
	require.NoError(t, s.AddXP(100))
	require.NoError(t, s.AddPendingXP("a", 30))
	require.NoError(t, s.AddPendingXP("b", 10))

	st := s.Snapshot()
	assert.Equal(t, int64(140), st.TotalXP)
	assert.Equal(t, int64(40), st.PendingTotal())
	assert.Equal(t, int64(100), st.ConfirmedXP())

	// 服务端领先时挂起部分叠加在服务端值上
	assert.True(t, s.RaiseConfirmedXP(150))
	assert.Equal(t, int64(190), s.Snapshot().TotalXP)
	assert.False(t, s.RaiseConfirmedXP(120))

	// 服务端确认 a（150 + 30）
	s.SettlePendingXP("a", 180)
	st = s.Snapshot()
	assert.Equal(t, int64(190), st.TotalXP)
	assert.Equal(t, map[string]int64{"b": 10}, st.PendingXP)

	assert.ErrorIs(t, s.AddPendingXP("c", -1), ErrNegativeXP)
}

func TestXPSaturatesAtCap(t *testing.T) {
	s, _ := openMemory(t)
	require.NoError(t, s.SetTotalXP(ledger.MaxXP-5))
	require.NoError(t, s.AddXP(1_000))
	assert.Equal(t, ledger.MaxXP, s.Snapshot().TotalXP)
	assert.Equal(t, ledger.LevelForXP(ledger.MaxXP), s.Level())
}

func TestSubscribersNotifiedInOrder(t *testing.T) {
	s, _ := openMemory(t)

	var seen []int64
	unsubscribe := s.Subscribe(func(st State) { seen = append(seen, st.TotalXP) })
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.AddXP(int64(i)))
	}
	unsubscribe()
	require.NoError(t, s.AddXP(100))

	assert.Equal(t, []int64{1, 3, 6}, seen)
}

func TestBindWipesOnIdentityChange(t *testing.T) {
	s, _ := openMemory(t)
	require.NoError(t, s.AddXP(40))

	// 匿名进度在首次绑定时保留
	assert.False(t, s.Bind(7, false))
	assert.Equal(t, int64(40), s.Snapshot().TotalXP)
	assert.True(t, s.Snapshot().IsAuthenticated)

	assert.False(t, s.Bind(7, false))
	assert.Equal(t, int64(40), s.Snapshot().TotalXP)

	// 退出后同一账号重新登录不清空
	s.Bind(0, true)
	assert.False(t, s.Bind(7, false))
	assert.Equal(t, int64(40), s.Snapshot().TotalXP)

	assert.True(t, s.Bind(8, false))
	st := s.Snapshot()
	assert.Equal(t, int64(0), st.TotalXP)
	assert.Equal(t, uint(8), st.BoundUserID)
	assert.Equal(t, st.MaxEnergy, st.CurrentEnergy)
}

func TestRecordLocalActivityRollsOverAndCountsStreak(t *testing.T) {
	s, _ := openMemory(t)

	s.RecordLocalActivity(ledger.TaskTest, "2026-05-10")
	s.RecordLocalActivity(ledger.TaskTest, "2026-05-10")
	s.MarkLocalClaim(ledger.TaskTest, "2026-05-10")
	st := s.Snapshot()
	assert.Equal(t, 2, st.DailyFallback.TestsToday)
	assert.True(t, st.DailyFallback.TestClaimed)
	assert.Equal(t, 1, st.StreakCount)

	s.RecordLocalActivity(ledger.TaskLesson, "2026-05-11")
	st = s.Snapshot()
	assert.Equal(t, "2026-05-11", st.DailyFallback.Date)
	assert.Equal(t, 0, st.DailyFallback.TestsToday)
	assert.False(t, st.DailyFallback.TestClaimed)
	assert.Equal(t, 1, st.DailyFallback.LessonsToday)
	assert.Equal(t, 2, st.StreakCount)

	s.RecordLocalActivity(ledger.TaskLesson, "2026-05-14")
	assert.Equal(t, 1, s.Snapshot().StreakCount)
}

func TestSQLitePersisterSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	p, err := OpenSQLite(path, "")
	require.NoError(t, err)
	s, err := Open(ctx, p, Options{})
	require.NoError(t, err)
	s.Bind(42, false)
	require.NoError(t, s.AddXP(320))
	require.NoError(t, s.AddPendingXP("att-1", 20))
	s.RemoveLives(2)
	require.NoError(t, p.Close())

	p2, err := OpenSQLite(path, "")
	require.NoError(t, err)
	defer p2.Close()
	s2, err := Open(ctx, p2, Options{})
	require.NoError(t, err)

	st := s2.Snapshot()
	assert.Equal(t, int64(340), st.TotalXP)
	assert.Equal(t, int64(320), st.ConfirmedXP())
	assert.Equal(t, map[string]int64{"att-1": 20}, st.PendingXP)
	assert.Equal(t, 3, st.Level())
	assert.Equal(t, uint(42), st.BoundUserID)
	assert.Equal(t, ledger.DefaultMaxEnergy-2, st.CurrentEnergy)
}

func TestSQLitePersisterKeysAreIndependent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	for i, key := range []string{"alpha", "beta"} {
		p, err := OpenSQLite(path, key)
		require.NoError(t, err)
		s, err := Open(ctx, p, Options{})
		require.NoError(t, err)
		require.NoError(t, s.AddXP(int64(10*(i+1))), fmt.Sprintf("key %s", key))
		require.NoError(t, p.Close())
	}

	p, err := OpenSQLite(path, "alpha")
	require.NoError(t, err)
	defer p.Close()
	st, ok, err := p.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), st.TotalXP)
}
