package version

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i-m-c/go-inheritance/model"
)

// storeFactories lets every contract test run against both stores.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			s := NewMemoryStore()
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(SQLiteConfig{
				Path:      filepath.Join(t.TempDir(), "versions.db"),
				PoolSize:  4,
				CacheSize: 8,
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			_, ok, err := s.Latest(ctx, "Base")
			require.NoError(t, err)
			assert.False(t, ok, "no versions yet")
			_, ok, err = s.Stable(ctx, "Base")
			require.NoError(t, err)
			assert.False(t, ok)
			_, ok, err = s.Values(ctx, "Base", 1)
			require.NoError(t, err)
			assert.False(t, ok)

			v1, err := s.Record(ctx, "Base", ValueMap{"timeout": int64(30)})
			require.NoError(t, err)
			assert.Equal(t, 1, v1.Number)
			assert.NotEmpty(t, v1.Digest)
			assert.True(t, v1.Stable, "without a marker the latest version is stable")

			v2, err := s.Record(ctx, "Base", ValueMap{"timeout": int64(60), "label": nil})
			require.NoError(t, err)
			assert.Equal(t, 2, v2.Number)
			assert.NotEqual(t, v1.Digest, v2.Digest)

			latest, ok, err := s.Latest(ctx, "Base")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 2, latest)

			stable, ok, err := s.Stable(ctx, "Base")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 2, stable)

			vm, ok, err := s.Values(ctx, "Base", 1)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, ValueMap{"timeout": int64(30)}, vm)

			vm, ok, err = s.Values(ctx, "Base", 2)
			require.NoError(t, err)
			require.True(t, ok)
			value, tracked := vm.Lookup("label")
			assert.True(t, tracked, "explicit null is tracked")
			assert.Nil(t, value)
			_, tracked = vm.Lookup("missing")
			assert.False(t, tracked)

			_, ok, err = s.Values(ctx, "Base", 3)
			require.NoError(t, err)
			assert.False(t, ok)
			_, ok, err = s.Values(ctx, "Base", 0)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.SetStable(ctx, "Base", 1))
			stable, _, err = s.Stable(ctx, "Base")
			require.NoError(t, err)
			assert.Equal(t, 1, stable)

			v3, err := s.Record(ctx, "Base", ValueMap{"timeout": int64(90)})
			require.NoError(t, err)
			assert.False(t, v3.Stable, "an explicit marker stays put")

			assert.ErrorIs(t, s.SetStable(ctx, "Base", 7), ErrVersionNotFound)
			assert.ErrorIs(t, s.SetStable(ctx, "Other", 1), ErrVersionNotFound)

			infos, err := s.List(ctx, "Base")
			require.NoError(t, err)
			require.Len(t, infos, 3)
			for i, info := range infos {
				assert.Equal(t, i+1, info.Number)
				assert.Equal(t, info.Number == 1, info.Stable)
				assert.False(t, info.Created.IsZero())
			}

			infos, err = s.List(ctx, "Other")
			require.NoError(t, err)
			assert.Empty(t, infos)

			_, err = s.Record(ctx, "", nil)
			assert.ErrorIs(t, err, ErrEmptyProject)
		})
	}
}

func TestStore_SnapshotsAreImmutable(t *testing.T) {
	ctx := context.Background()

	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			values := ValueMap{"timeout": int64(30)}
			_, err := s.Record(ctx, "p", values)
			require.NoError(t, err)

			values["timeout"] = int64(99)
			got, _, err := s.Values(ctx, "p", 1)
			require.NoError(t, err)
			assert.Equal(t, int64(30), got["timeout"])

			got["timeout"] = int64(100)
			again, _, err := s.Values(ctx, "p", 1)
			require.NoError(t, err)
			assert.Equal(t, int64(30), again["timeout"])
		})
	}
}

func TestStore_Rename(t *testing.T) {
	ctx := context.Background()

	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			_, err := s.Record(ctx, "Base", ValueMap{"timeout": int64(30)})
			require.NoError(t, err)
			_, err = s.Record(ctx, "Base", ValueMap{"timeout": int64(60)})
			require.NoError(t, err)
			require.NoError(t, s.SetStable(ctx, "Base", 1))

			// Populate the decoded cache under the old name.
			_, _, err = s.Values(ctx, "Base", 1)
			require.NoError(t, err)

			require.NoError(t, s.Rename(ctx, "Base", "Root"))

			_, ok, err := s.Latest(ctx, "Base")
			require.NoError(t, err)
			assert.False(t, ok, "old name keeps no history")
			_, ok, err = s.Values(ctx, "Base", 1)
			require.NoError(t, err)
			assert.False(t, ok)

			stable, ok, err := s.Stable(ctx, "Root")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 1, stable, "stable marker moves with the history")

			got, ok, err := s.Values(ctx, "Root", 1)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(30), got["timeout"])

			infos, err := s.List(ctx, "Root")
			require.NoError(t, err)
			assert.Len(t, infos, 2)

			next, err := s.Record(ctx, "Root", ValueMap{"timeout": int64(90)})
			require.NoError(t, err)
			assert.Equal(t, 3, next.Number, "numbering continues after a rename")

			_, err = s.Record(ctx, "Other", nil)
			require.NoError(t, err)
			assert.ErrorIs(t, s.Rename(ctx, "Other", "Root"), ErrHistoryExists)
			assert.ErrorIs(t, s.Rename(ctx, "Root", ""), ErrEmptyProject)
			assert.NoError(t, s.Rename(ctx, "never-recorded", "fresh"))
		})
	}
}

func TestStore_ConcurrentRecordAndRead(t *testing.T) {
	ctx := context.Background()

	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			_, err := s.Record(ctx, "p", ValueMap{"n": int64(0)})
			require.NoError(t, err)

			const writers = 4
			const perWriter = 5
			var wg sync.WaitGroup
			errs := make(chan error, writers*perWriter*2)

			for range writers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range perWriter {
						if _, err := s.Record(ctx, "p", ValueMap{"n": int64(1)}); err != nil {
							errs <- err
						}
						if _, _, err := s.Values(ctx, "p", 1); err != nil {
							errs <- err
						}
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Errorf("concurrent access: %v", err)
			}

			latest, _, err := s.Latest(ctx, "p")
			require.NoError(t, err)
			assert.Equal(t, 1+writers*perWriter, latest)

			infos, err := s.List(ctx, "p")
			require.NoError(t, err)
			for i, info := range infos {
				assert.Equal(t, i+1, info.Number, "numbers are dense and increasing")
			}
		})
	}
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()

	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			require.NoError(t, s.Close())
			_, err := s.Record(ctx, "p", nil)
			assert.ErrorIs(t, err, ErrClosed)
			_, _, err = s.Latest(ctx, "p")
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "versions.db")

	s, err := OpenSQLite(SQLiteConfig{Path: path})
	require.NoError(t, err)
	values := ValueMap{
		"parameters": []any{model.StringParameter{Name: "BRANCH", Default: "main"}},
		"scm":        []any{model.GitSCM{URL: "https://example.com/r.git"}},
	}
	_, err = s.Record(ctx, "job", values)
	require.NoError(t, err)
	_, err = s.Record(ctx, "job", ValueMap{})
	require.NoError(t, err)
	require.NoError(t, s.SetStable(ctx, "job", 1))

	_, _, err = s.Values(ctx, "job", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.CachedSnapshots())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, s.CachedSnapshots(), "close purges decoded snapshots")
	require.NoError(t, s.Close(), "close is idempotent")

	reopened, err := OpenSQLite(SQLiteConfig{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	stable, ok, err := reopened.Stable(ctx, "job")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, stable)

	got, ok, err := reopened.Values(ctx, "job", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, values, got)
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite(SQLiteConfig{})
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	old := ValueMap{"timeout": int64(30), "label": "linux", "gone": true, "same": []any{"a"}}
	new := ValueMap{"timeout": int64(60), "label": "linux", "added": nil, "same": []any{"a"}}

	d := Compare(old, new)
	assert.Equal(t, []string{"added"}, d.Added)
	assert.Equal(t, []string{"gone"}, d.Removed)
	assert.Equal(t, []string{"timeout"}, d.Changed)
	assert.Equal(t, 3, d.TotalChanges())
	assert.False(t, d.IsEmpty())

	assert.True(t, Compare(nil, nil).IsEmpty())
	assert.True(t, Compare(ValueMap{"n": 1}, ValueMap{"n": int64(1)}).IsEmpty(), "canonical encoding ignores int width")
}

func TestDigest(t *testing.T) {
	a, err := Digest(ValueMap{"x": int64(1), "y": "z"})
	require.NoError(t, err)
	b, err := Digest(ValueMap{"y": "z", "x": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}
