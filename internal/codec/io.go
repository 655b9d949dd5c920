// Package codec implements the uniform decoder/encoder contract over JPEG
// and PNG, the callback-style I/O objects codecs pull from, EXIF
// orientation parsing, and ICC colour-profile pass-through.
package codec

import (
	"io"
	"os"

	"github.com/deepteams/fastscale/internal/core"
)

// IOMode flags which operations an I/O object supports.
type IOMode int

const (
	IOModeNull              IOMode = 0
	IOModeReadSequential    IOMode = 1
	IOModeWriteSequential   IOMode = 2
	IOModeReadSeekable      IOMode = 5 // 1 | 4
	IOModeWriteSeekable     IOMode = 6 // 2 | 4
	IOModeReadWriteSeekable IOMode = 15
)

// IO is the byte-stream contract codecs consume. Read returns 0, io.EOF at
// end of stream; a partial Write is an error; Seek reports success.
type IO interface {
	Mode() IOMode
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(position int64) bool
	Position() int64
	// Length returns the total stream length when known, else -1.
	Length() int64
	Dispose() bool
}

// MemoryIO reads from an in-memory byte slice.
type MemoryIO struct {
	data []byte
	pos  int64
}

// NewMemoryIO wraps data in a read-seekable I/O object tracked on c.
func NewMemoryIO(c *core.Context, data []byte, owner any) *MemoryIO {
	m := &MemoryIO{data: data}
	if !c.Track(m, len(data), owner, nil) {
		c.AddToCallstack()
		return nil
	}
	return m
}

func (m *MemoryIO) Mode() IOMode { return IOModeReadSeekable }

func (m *MemoryIO) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *MemoryIO) Write(p []byte) (int, error) { return 0, errNotWritable }

func (m *MemoryIO) Seek(position int64) bool {
	if position < 0 || position > int64(len(m.data)) {
		return false
	}
	m.pos = position
	return true
}

func (m *MemoryIO) Position() int64 { return m.pos }
func (m *MemoryIO) Length() int64   { return int64(len(m.data)) }
func (m *MemoryIO) Dispose() bool   { m.data = nil; return true }

// BufferIO collects written bytes in a growing buffer.
type BufferIO struct {
	data []byte
	pos  int64
}

// NewBufferIO creates an empty write-seekable buffer tracked on c.
func NewBufferIO(c *core.Context, capacityHint int, owner any) *BufferIO {
	b := &BufferIO{data: make([]byte, 0, capacityHint)}
	if !c.Track(b, capacityHint, owner, nil) {
		c.AddToCallstack()
		return nil
	}
	return b
}

func (b *BufferIO) Mode() IOMode { return IOModeWriteSeekable }

func (b *BufferIO) Read(p []byte) (int, error) { return 0, errNotReadable }

func (b *BufferIO) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *BufferIO) Seek(position int64) bool {
	if position < 0 || position > int64(len(b.data)) {
		return false
	}
	b.pos = position
	return true
}

func (b *BufferIO) Position() int64 { return b.pos }
func (b *BufferIO) Length() int64   { return int64(len(b.data)) }
func (b *BufferIO) Dispose() bool   { b.data = nil; return true }

// Bytes returns the written contents.
func (b *BufferIO) Bytes() []byte { return b.data }

// FileIO adapts an *os.File.
type FileIO struct {
	f    *os.File
	mode IOMode
}

// OpenFileIO opens path for reading as a read-seekable I/O object. The file
// is closed by the tracked destructor when the object is destroyed.
func OpenFileIO(c *core.Context, path string, owner any) *FileIO {
	f, err := os.Open(path)
	if err != nil {
		c.SetErrorf(core.StatusIOError, "open %s: %v", path, err)
		return nil
	}
	fio := &FileIO{f: f, mode: IOModeReadSeekable}
	if !c.Track(fio, 0, owner, func(_ *core.Context, _ any) error { return f.Close() }) {
		f.Close()
		c.AddToCallstack()
		return nil
	}
	return fio
}

// CreateFileIO creates path for writing as a write-seekable I/O object.
func CreateFileIO(c *core.Context, path string, owner any) *FileIO {
	f, err := os.Create(path)
	if err != nil {
		c.SetErrorf(core.StatusIOError, "create %s: %v", path, err)
		return nil
	}
	fio := &FileIO{f: f, mode: IOModeWriteSeekable}
	if !c.Track(fio, 0, owner, func(_ *core.Context, _ any) error { return f.Close() }) {
		f.Close()
		c.AddToCallstack()
		return nil
	}
	return fio
}

func (f *FileIO) Mode() IOMode { return f.mode }

func (f *FileIO) Read(p []byte) (int, error) { return f.f.Read(p) }

func (f *FileIO) Write(p []byte) (int, error) {
	n, err := f.f.Write(p)
	if err == nil && n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, err
}

func (f *FileIO) Seek(position int64) bool {
	_, err := f.f.Seek(position, io.SeekStart)
	return err == nil
}

func (f *FileIO) Position() int64 {
	pos, err := f.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	return pos
}

func (f *FileIO) Length() int64 {
	st, err := f.f.Stat()
	if err != nil {
		return -1
	}
	return st.Size()
}

func (f *FileIO) Dispose() bool { return f.f.Close() == nil }

// readAll drains an I/O object. When the length is known a single
// exact-sized allocation is used instead of repeated doublings.
func readAll(c *core.Context, r IO) ([]byte, bool) {
	if n := r.Length(); n > 0 {
		remaining := n - r.Position()
		data := make([]byte, remaining)
		got := 0
		for got < len(data) {
			k, err := r.Read(data[got:])
			got += k
			if err == io.EOF {
				break
			}
			if err != nil {
				c.SetErrorf(core.StatusIOError, "reading stream: %v", err)
				return nil, false
			}
		}
		return data[:got], true
	}
	var data []byte
	buf := make([]byte, 32*1024)
	for {
		k, err := r.Read(buf)
		data = append(data, buf[:k]...)
		if err == io.EOF {
			return data, true
		}
		if err != nil {
			c.SetErrorf(core.StatusIOError, "reading stream: %v", err)
			return nil, false
		}
		if k == 0 {
			return data, true
		}
	}
}
