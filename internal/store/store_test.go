package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaher/parley/internal/domain"
	"github.com/dmaher/parley/internal/logging"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// stores returns both implementations under test so the contract tests run
// against each.
func stores(t *testing.T) map[string]ConversationStore {
	t.Helper()
	mem := NewMemoryStore(0, logging.New(nil, "silent"))
	t.Cleanup(func() { mem.Close() })

	sq := NewSQLiteStore(testDB(t), 0)
	t.Cleanup(func() { sq.Close() })

	return map[string]ConversationStore{"memory": mem, "sqlite": sq}
}

// --- DB/Migration tests ---

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	err := db.migrate()
	require.NoError(t, err)

	var count int
	err = db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"conversations", "messages"} {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

// --- ConversationStore contract tests ---

func TestStore_CreateAppendHistory(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, err := s.Create()
			require.NoError(t, err)
			require.NotEmpty(t, id)
			assert.True(t, s.Exists(id))

			require.NoError(t, s.Append(id, domain.Message{Role: domain.RoleUser, Content: "hi"}))
			require.NoError(t, s.Append(id, domain.Message{Role: domain.RoleAssistant, Content: "hello"}))

			history, err := s.History(id)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, domain.RoleUser, history[0].Role)
			assert.Equal(t, "hi", history[0].Content)
			assert.Equal(t, "hello", history[1].Content)
		})
	}
}

func TestStore_UnknownIDErrors(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.False(t, s.Exists("ghost"))

			err := s.Append("ghost", domain.Message{Role: domain.RoleUser, Content: "x"})
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.History("ghost")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, err := s.Create()
			require.NoError(t, err)

			require.NoError(t, s.Delete(id))
			assert.False(t, s.Exists(id))

			// second delete of the same id, and a never-existing id
			assert.NoError(t, s.Delete(id))
			assert.NoError(t, s.Delete("never-existed"))
		})
	}
}

func TestStore_ToolCallsRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, err := s.Create()
			require.NoError(t, err)

			calls := []domain.ToolCall{
				{Name: "get_weather", Input: map[string]any{"location": "London"}, Result: domain.Succeed("sunny")},
				{Name: "search_web", Input: map[string]any{"query": "go"}, Result: domain.Fail(domain.FailureTimeout, "slow")},
			}
			require.NoError(t, s.Append(id, domain.Message{Role: domain.RoleAssistant, ToolCalls: calls}))

			history, err := s.History(id)
			require.NoError(t, err)
			require.Len(t, history, 1)
			require.Len(t, history[0].ToolCalls, 2)
			assert.Equal(t, "get_weather", history[0].ToolCalls[0].Name)
			require.NotNil(t, history[0].ToolCalls[1].Result.Failure)
			assert.Equal(t, domain.FailureTimeout, history[0].ToolCalls[1].Result.Failure.Kind)
		})
	}
}

func TestSQLiteStore_UnencodableToolCallsRejected(t *testing.T) {
	s := NewSQLiteStore(testDB(t), 0)
	t.Cleanup(func() { s.Close() })

	id, err := s.Create()
	require.NoError(t, err)

	// channels cannot be JSON-encoded; the append must fail loudly rather
	// than silently dropping the tool calls
	err = s.Append(id, domain.Message{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{
			{Name: "get_weather", Input: map[string]any{"ch": make(chan int)}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoding tool calls")

	history, err := s.History(id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemoryStore_HistoryIsSnapshot(t *testing.T) {
	s := NewMemoryStore(0, logging.New(nil, "silent"))
	defer s.Close()

	id, err := s.Create()
	require.NoError(t, err)
	require.NoError(t, s.Append(id, domain.Message{Role: domain.RoleUser, Content: "one"}))

	snapshot, err := s.History(id)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	require.NoError(t, s.Append(id, domain.Message{Role: domain.RoleUser, Content: "two"}))
	assert.Len(t, snapshot, 1, "earlier snapshot must not grow")
}

func TestStore_AcquireSerializesPerID(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, err := s.Create()
			require.NoError(t, err)

			var active, maxActive int
			var mu sync.Mutex
			var wg sync.WaitGroup

			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					release := s.Acquire(id)
					defer release()

					mu.Lock()
					active++
					if active > maxActive {
						maxActive = active
					}
					mu.Unlock()

					time.Sleep(time.Millisecond)

					mu.Lock()
					active--
					mu.Unlock()
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, maxActive, "turns on one id must not overlap")
		})
	}
}

func TestKeyedMutex_IndependentKeysDontBlock(t *testing.T) {
	km := newKeyedMutex()

	releaseA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		releaseB := km.Lock("b")
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	releaseA()

	// table entries are removed once released
	km.mu.Lock()
	assert.Empty(t, km.locks)
	km.mu.Unlock()
}

func TestMemoryStore_SweepEvictsIdle(t *testing.T) {
	s := NewMemoryStore(time.Hour, logging.New(nil, "silent"))
	defer s.Close()

	stale, err := s.Create()
	require.NoError(t, err)
	fresh, err := s.Create()
	require.NoError(t, err)

	// sweep as if two hours have passed, then touch the fresh one
	require.NoError(t, s.Append(fresh, domain.Message{Role: domain.RoleUser, Content: "hi"}))
	s.mu.Lock()
	s.convs[stale].LastActive = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	evicted := s.sweepIdle(time.Now())
	assert.Equal(t, 1, evicted)
	assert.False(t, s.Exists(stale))
	assert.True(t, s.Exists(fresh))
}

func TestSQLiteStore_SweepEvictsIdle(t *testing.T) {
	s := NewSQLiteStore(testDB(t), time.Hour)
	defer s.Close()

	stale, err := s.Create()
	require.NoError(t, err)
	fresh, err := s.Create()
	require.NoError(t, err)

	old := time.Now().UTC().Add(-2 * time.Hour).Format(time.DateTime)
	_, err = s.db.sql.Exec(`UPDATE conversations SET last_active = ? WHERE id = ?`, old, stale)
	require.NoError(t, err)

	n, err := s.sweepIdle(time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.False(t, s.Exists(stale))
	assert.True(t, s.Exists(fresh))
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	log := logging.New(nil, "silent")
	path := t.TempDir() + "/parley.db"

	db, err := Open(path, log)
	require.NoError(t, err)
	s := NewSQLiteStore(db, 0)

	id, err := s.Create()
	require.NoError(t, err)
	require.NoError(t, s.Append(id, domain.Message{Role: domain.RoleUser, Content: "persist me"}))
	s.Close()
	require.NoError(t, db.Close())

	db2, err := Open(path, log)
	require.NoError(t, err)
	defer db2.Close()
	s2 := NewSQLiteStore(db2, 0)
	defer s2.Close()

	history, err := s2.History(id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "persist me", history[0].Content)
}
