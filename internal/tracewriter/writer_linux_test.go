//go:build linux

package tracewriter

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/yairfalse/lttd/pkg/lttd"
)

// fileBuffer serves one subbuffer from a regular file, which the kernel can
// splice like a relay channel
type fileBuffer struct {
	f    *os.File
	size uint32
}

var _ lttd.FdBuffer = (*fileBuffer)(nil)

func newFileBuffer(t *testing.T, data []byte) *fileBuffer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channel")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return &fileBuffer{f: f, size: uint32(len(data))}
}

func (b *fileBuffer) ReadAt(p []byte, off int64) (int, error) { return b.f.ReadAt(p, off) }
func (b *fileBuffer) SubbufCount() (uint32, error)            { return 1, nil }
func (b *fileBuffer) MaxSubbufSize() (uint32, error)          { return b.size, nil }
func (b *fileBuffer) GetSubbuf() (uint32, error)              { return 0, nil }
func (b *fileBuffer) SubbufSize() (uint32, error)             { return b.size, nil }
func (b *fileBuffer) PutSubbuf(uint32) error                  { return nil }
func (b *fileBuffer) Close() error                            { return nil }
func (b *fileBuffer) Fd() uintptr                             { return b.f.Fd() }

// pattern returns n bytes that differ from one page to the next
func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte('a' + (i/997)%26)
	}
	return data
}

func TestSpliceSubbufferThroughSmallPipe(t *testing.T) {
	pageSize := os.Getpagesize()
	data := pattern(3*pageSize + 100)
	src := newFileBuffer(t, data)

	// A one page pipe forces several transfers per subbuffer
	p, err := newPipe(pageSize)
	require.NoError(t, err)
	defer p.close()

	out, err := os.Create(filepath.Join(t.TempDir(), "trace"))
	require.NoError(t, err)
	defer out.Close()

	n, err := spliceSubbuffer(src.Fd(), p, out, uint32(len(data)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	content, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, content), "trace file differs from the subbuffer")
}

func TestWriterSplicesChannelsWithDescriptor(t *testing.T) {
	pageSize := os.Getpagesize()
	w, dir := newTestWriter(t, false)
	w.cfg.PipeSize = pageSize

	data := pattern(2*pageSize + 17)
	buf := newFileBuffer(t, data)
	ch, err := lttd.NewChannel[*File](buf.f.Name(), "cpu0", buf, 3)
	require.NoError(t, err)
	_, hasFd := ch.Fd()
	require.True(t, hasFd)

	require.NoError(t, w.OnNewThread(3))
	require.NotNil(t, w.pipe(3))
	require.NoError(t, w.OnOpenChannel(ch, "cpu0"))

	require.NoError(t, w.OnReadSubbuffer(ch, uint32(len(data))))
	require.NoError(t, w.OnReadSubbuffer(ch, uint32(len(data))))
	require.NoError(t, w.OnCloseChannel(ch))
	require.NoError(t, w.OnCloseThread(3))
	assert.Nil(t, w.pipe(3))

	content, err := os.ReadFile(filepath.Join(dir, "cpu0"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(append(append([]byte(nil), data...), data...), content))
	assert.Equal(t, int64(2*len(data)), w.BytesWritten())
}

func TestPipeDiscardEmptiesPipe(t *testing.T) {
	p, err := newPipe(0)
	require.NoError(t, err)
	defer p.close()

	_, err = unix.Write(p.w, []byte("stale bytes"))
	require.NoError(t, err)
	n, err := unix.IoctlGetInt(p.r, unix.TIOCINQ)
	require.NoError(t, err)
	require.Equal(t, 11, n)

	p.discard()

	n, err = unix.IoctlGetInt(p.r, unix.TIOCINQ)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
