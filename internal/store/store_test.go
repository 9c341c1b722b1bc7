package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signaldeck/pkg/model"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	out := map[string]Store{
		"memory": NewMemory(),
		"file":   fs,
	}
	if dsn := os.Getenv("SIGNALDECK_TEST_DATABASE_URL"); dsn != "" {
		pg, err := OpenPostgres(context.Background(), dsn)
		require.NoError(t, err)
		require.NoError(t, pg.Clear(context.Background()))
		t.Cleanup(func() { pg.Close() })
		out["postgres"] = pg
	}
	return out
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "a", []byte(`{"x":1}`)))
			got, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.JSONEq(t, `{"x":1}`, string(got))

			require.NoError(t, s.Set(ctx, "a", []byte(`[1,2]`)))
			got, err = s.Get(ctx, "a")
			require.NoError(t, err)
			assert.JSONEq(t, `[1,2]`, string(got))

			require.NoError(t, s.Set(ctx, "b", []byte(`"y"`)))
			require.NoError(t, s.Delete(ctx, "a"))
			_, err = s.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Clear(ctx))
			_, err = s.Get(ctx, "b")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, fs.Set(ctx, KeySignals, []byte(`[{"id":"a1"}]`)))

	reopened, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)
	got, err := reopened.Get(ctx, KeySignals)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a1"}]`, string(got))
}

func TestFileStoreCorruptStartsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/signaldeck.json", []byte("{not json"), 0644))

	fs, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)
	_, err = fs.Get(context.Background(), KeySignals)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreFailedWriteKeepsState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, fs.Set(ctx, "a", []byte(`["old"]`)))
	require.NoError(t, fs.Set(ctx, "b", []byte(`"keep"`)))

	// a directory in place of the temp file makes every write fail
	require.NoError(t, os.Mkdir(dir+"/signaldeck.json.tmp", 0755))

	assert.Error(t, fs.Set(ctx, "a", []byte(`["new"]`)))
	assert.Error(t, fs.Delete(ctx, "b"))
	assert.Error(t, fs.Clear(ctx))

	got, err := fs.Get(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `["old"]`, string(got))
	got, err = fs.Get(ctx, "b")
	require.NoError(t, err)
	assert.JSONEq(t, `"keep"`, string(got))

	repo := NewSignalRepository(fs)
	require.NoError(t, os.Remove(dir+"/signaldeck.json.tmp"))
	require.NoError(t, repo.Save(ctx, []model.TradeSignal{sig("a1", "SBIN-EQ", model.TimeframeIntraday)}))
	require.NoError(t, os.Mkdir(dir+"/signaldeck.json.tmp", 0755))

	_, err = repo.Apply(ctx, func(cur []model.TradeSignal) []model.TradeSignal {
		return append(cur, sig("b2", "TCS-EQ", model.TimeframeSwing))
	})
	assert.Error(t, err)
	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1, "buffer unchanged after a failed save")
	assert.Equal(t, "a1", loaded[0].ID)
}

func sig(id, symbol string, tf model.Timeframe) model.TradeSignal {
	return model.TradeSignal{
		ID:              id,
		Symbol:          symbol,
		Timeframe:       tf,
		Direction:       model.DirectionBuy,
		ConfidenceScore: 80,
		Timestamp:       time.Unix(1700000000, 0).UTC(),
	}
}

func TestSignalRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSignalRepository(NewMemory())

	empty, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, repo.Save(ctx, []model.TradeSignal{
		sig("a1", "SBIN-EQ", model.TimeframeIntraday),
		sig("b2", "TCS-EQ", model.TimeframeSwing),
	}))

	updated, err := repo.MarkTaken(ctx, "b2", true)
	require.NoError(t, err)
	assert.True(t, updated.Taken)

	updated, err = repo.SetFeedback(ctx, "a1", "stopped out at open")
	require.NoError(t, err)
	assert.Equal(t, "stopped out at open", updated.Feedback)

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "stopped out at open", loaded[0].Feedback)
	assert.True(t, loaded[1].Taken)

	_, err = repo.MarkTaken(ctx, "nope", true)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Clear(ctx))
	loaded, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSignalRepositoryApplySerializes(t *testing.T) {
	ctx := context.Background()
	repo := NewSignalRepository(NewMemory())

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Apply(ctx, func(cur []model.TradeSignal) []model.TradeSignal {
				return append(cur, sig(string(rune('a'+i)), "ITC-EQ", model.TimeframeSwing))
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 25, "no lost updates")
}
