package feedback

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signaldeck/internal/store"
)

func TestAppendBounded(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory(), 3)

	for i := 1; i <= 5; i++ {
		require.NoError(t, l.Append(ctx, "SBIN-EQ", "INTRADAY", fmt.Sprintf("note %d", i)))
	}
	assert.Equal(t, []string{"note 3", "note 4", "note 5"}, l.For(ctx, "SBIN-EQ"))
	assert.Empty(t, l.For(ctx, "TCS-EQ"))
}

func TestBlankIgnored(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory(), 0)

	require.NoError(t, l.Append(ctx, "SBIN-EQ", "SWING", "   "))
	assert.Empty(t, l.For(ctx, "SBIN-EQ"))
}

func TestPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()

	require.NoError(t, New(kv, 5).Append(ctx, "ITC-EQ", "SWING", "target 2 hit"))
	assert.Equal(t, []string{"target 2 hit"}, New(kv, 5).For(ctx, "ITC-EQ"))

	l := New(kv, 5)
	require.NoError(t, l.Clear(ctx))
	assert.Empty(t, l.For(ctx, "ITC-EQ"))
	assert.Empty(t, New(kv, 5).For(ctx, "ITC-EQ"))
}

func TestNullDocumentTreatedAsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	require.NoError(t, kv.Set(ctx, store.KeyFeedback, []byte("null")))

	l := New(kv, 5)
	require.NoError(t, l.Append(ctx, "SBIN-EQ", "INTRADAY", "entry was late"))
	assert.Equal(t, []string{"entry was late"}, l.For(ctx, "SBIN-EQ"))
}

type failingStore struct {
	*store.Memory
	fail bool
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

func TestAppendFailureLeavesLogUnchanged(t *testing.T) {
	ctx := context.Background()
	kv := &failingStore{Memory: store.NewMemory()}
	l := New(kv, 5)
	require.NoError(t, l.Append(ctx, "ITC-EQ", "SWING", "first"))

	kv.fail = true
	assert.Error(t, l.Append(ctx, "ITC-EQ", "SWING", "second"))
	assert.Error(t, l.Append(ctx, "TCS-EQ", "SWING", "other"))

	assert.Equal(t, []string{"first"}, l.For(ctx, "ITC-EQ"))
	assert.Empty(t, l.For(ctx, "TCS-EQ"))
}
