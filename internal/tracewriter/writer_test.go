package tracewriter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yairfalse/lttd/pkg/lttd"
	"github.com/yairfalse/lttd/pkg/lttd/lttdtest"
)

func newTestWriter(t *testing.T, appendMode bool) (*Writer, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "trace")
	w, err := New(Config{
		TraceDir: dir,
		Append:   appendMode,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return w, dir
}

// openChannel builds a channel over a memory buffer holding data
func openChannel(t *testing.T, backend *lttdtest.MemoryBackend, path string, data ...string) *lttd.Channel[*File] {
	t.Helper()
	mb := backend.Buffer(path)
	for _, d := range data {
		mb.Write([]byte(d))
	}
	buf, err := backend.Open(path)
	require.NoError(t, err)
	ch, err := lttd.NewChannel[*File](path, filepath.Base(path), buf, 0)
	require.NoError(t, err)
	return ch
}

// readOne reserves a subbuffer and hands it to the writer
func readOne(t *testing.T, w *Writer, ch *lttd.Channel[*File], buf lttd.Buffer) {
	t.Helper()
	consumed, err := buf.GetSubbuf()
	require.NoError(t, err)
	length, err := buf.SubbufSize()
	require.NoError(t, err)
	require.NoError(t, w.OnReadSubbuffer(ch, length))
	require.NoError(t, buf.PutSubbuf(consumed))
}

func TestNewRequiresTraceDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewCreatesTraceDir(t *testing.T) {
	_, dir := newTestWriter(t, false)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOnNewFolderIsIdempotent(t *testing.T) {
	w, dir := newTestWriter(t, false)

	require.NoError(t, w.OnNewFolder("kernel"))
	require.NoError(t, w.OnNewFolder("kernel"))

	info, err := os.Stat(filepath.Join(dir, "kernel"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOnNewFolderMissingParent(t *testing.T) {
	w, _ := newTestWriter(t, false)
	assert.Error(t, w.OnNewFolder(filepath.Join("missing", "kernel")))
}

func TestWriteSubbuffers(t *testing.T) {
	w, dir := newTestWriter(t, false)
	backend := lttdtest.NewMemoryBackend()
	path := filepath.Join(t.TempDir(), "cpu0")

	ch := openChannel(t, backend, path, "hello ", "world")
	require.NoError(t, w.OnOpenChannel(ch, "cpu0"))
	require.NotNil(t, ch.UserData)

	require.NoError(t, w.OnNewThread(0))
	readOne(t, w, ch, backend.Buffer(path))
	readOne(t, w, ch, backend.Buffer(path))
	require.NoError(t, w.OnCloseThread(0))

	assert.Equal(t, int64(11), ch.UserData.Written())
	require.NoError(t, w.OnCloseChannel(ch))

	content, err := os.ReadFile(filepath.Join(dir, "cpu0"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
	assert.Equal(t, int64(11), w.BytesWritten())
}

func TestOpenExistingWithoutAppend(t *testing.T) {
	w, dir := newTestWriter(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpu0"), []byte("old"), 0o644))

	backend := lttdtest.NewMemoryBackend()
	ch := openChannel(t, backend, filepath.Join(t.TempDir(), "cpu0"))

	err := w.OnOpenChannel(ch, "cpu0")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileExists)
	assert.Contains(t, err.Error(), "try append mode")
	assert.Nil(t, ch.UserData)
}

func TestOpenExistingWithAppend(t *testing.T) {
	w, dir := newTestWriter(t, true)
	target := filepath.Join(dir, "cpu0")
	require.NoError(t, os.WriteFile(target, []byte("old-"), 0o644))

	backend := lttdtest.NewMemoryBackend()
	path := filepath.Join(t.TempDir(), "cpu0")
	ch := openChannel(t, backend, path, "new")

	require.NoError(t, w.OnOpenChannel(ch, "cpu0"))
	readOne(t, w, ch, backend.Buffer(path))
	require.NoError(t, w.OnCloseChannel(ch))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "old-new", string(content))
}

func TestReadWithoutTraceFile(t *testing.T) {
	w, _ := newTestWriter(t, false)
	backend := lttdtest.NewMemoryBackend()
	ch := openChannel(t, backend, filepath.Join(t.TempDir(), "cpu0"), "x")

	assert.Error(t, w.OnReadSubbuffer(ch, 1))
	assert.NoError(t, w.OnCloseChannel(ch))
}

func TestCloseThreadWithoutPipe(t *testing.T) {
	w, _ := newTestWriter(t, false)
	assert.NoError(t, w.OnCloseThread(7))
}

func TestWaitUnblocksOnTraceEnd(t *testing.T) {
	w, _ := newTestWriter(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Wait(ctx), context.DeadlineExceeded)

	w.OnTraceEnd()
	w.OnTraceEnd()
	require.NoError(t, w.Wait(context.Background()))

	select {
	case <-w.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestWriterMirrorsChannelTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "kernel"), 0o755))
	for _, f := range []string{"cpu0", "cpu1", "kernel/cpu0"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, f), nil, 0o644))
	}

	backend := lttdtest.NewMemoryBackend()
	kernelCPU := filepath.Join("kernel", "cpu0")
	want := map[string]string{
		"cpu0":    "aaa",
		"cpu1":    "bbbb",
		kernelCPU: "kk",
	}
	for rel, data := range want {
		buf := backend.Buffer(filepath.Join(root, rel))
		buf.Write([]byte(data))
		buf.HangUp()
	}

	w, dir := newTestWriter(t, false)
	s, err := lttd.New[*File](w, lttd.Config{
		ChannelRoot:  root,
		Threads:      2,
		Backend:      backend,
		PollInterval: 10 * time.Millisecond,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, w.Wait(ctx))

	for rel, data := range want {
		content, err := os.ReadFile(filepath.Join(dir, rel))
		require.NoError(t, err, rel)
		assert.Equal(t, data, string(content), rel)
	}
	assert.Equal(t, int64(9), w.BytesWritten())
}
