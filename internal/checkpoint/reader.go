package checkpoint

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	json "github.com/goccy/go-json"
	"golang.org/x/sys/unix"

	"github.com/samcharles93/loom/internal/model"
)

// File is an open LCF checkpoint. The tensor data stays in the mapped
// (or loaded) byte range until Close.
type File struct {
	Meta Metadata

	data    []byte
	dataOff int64
	mmapped bool
}

// Open maps an LCF file read-only and validates its structure. If mmap
// is unavailable it falls back to ReadAt-based loading. The returned
// file must be closed to release any mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < headerSize {
		return nil, ErrCorruptFile
	}
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		cf, parseErr := parseFileData(data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return cf, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return parseFileData(data, false)
}

// OpenReaderAt loads and validates an LCF from a random-access reader
// without mmap.
func OpenReaderAt(r io.ReaderAt, size int64) (*File, error) {
	if size < headerSize || size > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	return parseFileData(data, false)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

func parseFileData(data []byte, mmapped bool) (*File, error) {
	if len(data) < headerSize {
		return nil, ErrCorruptFile
	}
	if string(data[:4]) != MagicLCF {
		return nil, ErrInvalidMagic
	}
	if binary.LittleEndian.Uint32(data[4:8]) != FormatVersion {
		return nil, ErrUnsupportedVersion
	}
	metaLen := binary.LittleEndian.Uint64(data[8:16])
	if metaLen > uint64(len(data)-headerSize) {
		return nil, ErrCorruptFile
	}
	cf := &File{
		data:    data,
		dataOff: headerSize + int64(metaLen),
		mmapped: mmapped,
	}
	if err := json.Unmarshal(data[headerSize:cf.dataOff], &cf.Meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	for _, ti := range cf.Meta.Tensors {
		end := cf.dataOff + ti.Offset + int64(ti.Rows*ti.Cols)*4
		if ti.Offset < 0 || ti.Rows <= 0 || ti.Cols <= 0 || end > int64(len(data)) {
			return nil, ErrCorruptFile
		}
	}
	return cf, nil
}

// Tensor decodes the named tensor into a fresh float32 slice.
func (f *File) Tensor(name string) ([]float32, error) {
	for _, ti := range f.Meta.Tensors {
		if ti.Name != name {
			continue
		}
		n := ti.Rows * ti.Cols
		out := make([]float32, n)
		base := f.dataOff + ti.Offset
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(f.data[base+int64(i)*4:])
			out[i] = math.Float32frombits(bits)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
}

// Close releases the mapping, if any.
func (f *File) Close() error {
	if f.mmapped && f.data != nil {
		data := f.data
		f.data = nil
		return unix.Munmap(data)
	}
	f.data = nil
	return nil
}

// LoadModel rebuilds a model from the checkpoint at path and returns
// it together with the training step it was saved at.
func LoadModel(path string) (*model.Model, int, error) {
	cf, err := Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = cf.Close() }()

	m, err := model.New(cf.Meta.Config)
	if err != nil {
		return nil, 0, fmt.Errorf("rebuild model: %w", err)
	}
	for _, p := range m.Params() {
		vals, err := cf.Tensor(p.Name)
		if err != nil {
			return nil, 0, err
		}
		if len(vals) != len(p.W.Data) {
			return nil, 0, fmt.Errorf("%w: tensor %s has %d values, want %d",
				ErrCorruptFile, p.Name, len(vals), len(p.W.Data))
		}
		copy(p.W.Data, vals)
	}
	return m, cf.Meta.Step, nil
}
