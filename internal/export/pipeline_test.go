package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/cache"
	"github.com/farmgate-io/farmgate/internal/config"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

// memStore is an in-memory cache.Store for tests.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func testConfig(dir string) config.Export {
	return config.Export{
		Dir:       dir,
		Timeout:   30 * time.Minute,
		CacheTTL:  time.Hour,
		BatchSize: 100,
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "orders.csv", "orders.csv"},
		{"path traversal", "../../etc/passwd", "_._etc_passwd"},
		{"spaces and slashes", "my report/june 2025", "my_report_june_2025"},
		{"repeated dots", "orders...csv", "orders.csv"},
		{"leading dot", ".hidden", "hidden"},
		{"unicode", "ordrar-åäö", "ordrar-___"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeFilename(tc.in))
		})
	}
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	long := strings.Repeat("a", 300)
	assert.Len(t, SanitizeFilename(long), 255)
}

func TestStreamToCSVWritesFile(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(testConfig(dir), newMemStore(), zap.NewNop())

	source := NewSliceSource(
		[]string{"id", "status"},
		[][]string{{"o-1", "pending"}, {"o-2", "completed"}},
		1,
	)

	path, err := p.StreamToCSV(context.Background(), source, "orders")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "orders.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"id", "status"}, records[0])
	assert.Equal(t, []string{"o-1", "pending"}, records[1])
	assert.Equal(t, []string{"o-2", "completed"}, records[2])
}

func TestStreamToCSVSanitizesTraversal(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(testConfig(dir), newMemStore(), zap.NewNop())

	source := NewSliceSource([]string{"id"}, [][]string{{"o-1"}}, 0)

	path, err := p.StreamToCSV(context.Background(), source, "../../etc/passwd")
	require.NoError(t, err)

	// The file must land inside the export directory.
	rel, err := filepath.Rel(dir, path)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(rel, ".."))
	assert.Equal(t, "_._etc_passwd.csv", filepath.Base(path))
}

func TestStreamToCSVRejectsBadInput(t *testing.T) {
	p := NewPipeline(testConfig(t.TempDir()), newMemStore(), zap.NewNop())

	_, err := p.StreamToCSV(context.Background(), nil, "orders")
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	source := NewSliceSource(nil, nil, 0)
	_, err = p.StreamToCSV(context.Background(), source, "   ")
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
}

func TestStreamToCSVIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := newMemStore()
	p := NewPipeline(testConfig(dir), store, zap.NewNop())

	first := NewSliceSource([]string{"id"}, [][]string{{"o-1"}}, 0)
	path1, err := p.StreamToCSV(context.Background(), first, "orders")
	require.NoError(t, err)

	// Second call must serve the cached file without draining the new source.
	second := NewSliceSource([]string{"id"}, [][]string{{"o-2"}}, 0)
	path2, err := p.StreamToCSV(context.Background(), second, "orders")
	require.NoError(t, err)

	assert.Equal(t, path1, path2)
	assert.Equal(t, 1, store.sets)
	assert.Equal(t, 0, second.offset)
}

func TestStreamToCSVRebuildsWhenFileRemoved(t *testing.T) {
	dir := t.TempDir()
	store := newMemStore()
	p := NewPipeline(testConfig(dir), store, zap.NewNop())

	first := NewSliceSource([]string{"id"}, [][]string{{"o-1"}}, 0)
	path1, err := p.StreamToCSV(context.Background(), first, "orders")
	require.NoError(t, err)
	require.NoError(t, os.Remove(path1))

	second := NewSliceSource([]string{"id"}, [][]string{{"o-2"}}, 0)
	path2, err := p.StreamToCSV(context.Background(), second, "orders")
	require.NoError(t, err)
	assert.Equal(t, path1, path2)
	assert.FileExists(t, path2)
}

func TestStreamToCSVTimeout(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Timeout = 20 * time.Millisecond
	p := NewPipeline(cfg, newMemStore(), zap.NewNop())

	// A channel that never produces forces the deadline to fire.
	blocked := make(chan [][]string)
	defer close(blocked)
	source := NewChanSource([]string{"id"}, blocked)

	_, err := p.StreamToCSV(context.Background(), source, "orders")
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindTimeout))

	// A failed export must leave neither a final file nor a cache entry.
	assert.NoFileExists(t, filepath.Join(dir, "orders.csv"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChanSourcePreservesArrivalOrder(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(testConfig(dir), newMemStore(), zap.NewNop())

	batches := make(chan [][]string, 3)
	batches <- [][]string{{"1"}}
	batches <- [][]string{{"2"}, {"3"}}
	batches <- [][]string{{"4"}}
	close(batches)

	path, err := p.StreamToCSV(context.Background(), NewChanSource([]string{"n"}, batches), "seq")
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 5)
	for i, want := range []string{"n", "1", "2", "3", "4"} {
		assert.Equal(t, want, records[i][0])
	}
}

func TestStreamToCSVCapsNameWithExtension(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(testConfig(dir), newMemStore(), zap.NewNop())

	// Long enough that a naive append would overflow the 255-char cap.
	long := strings.Repeat("a", 300)
	path, err := p.StreamToCSV(context.Background(), NewSliceSource([]string{"id"}, nil, 0), long)
	require.NoError(t, err)

	name := filepath.Base(path)
	assert.LessOrEqual(t, len(name), 255)
	assert.True(t, strings.HasSuffix(name, ".csv"))
	assert.FileExists(t, path)
}

func TestStreamToCSVAppendsExtension(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(testConfig(dir), newMemStore(), zap.NewNop())

	source := NewSliceSource([]string{"id"}, nil, 0)
	path, err := p.StreamToCSV(context.Background(), source, "plain-name")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "plain-name.csv"))
}
