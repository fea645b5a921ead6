package checkpoint

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/loom/internal/model"
)

// Save writes the model's weights and config to path as an LCF file.
// The file is written to a temporary sibling first and renamed into
// place so an interrupted save never leaves a truncated checkpoint.
func Save(path string, m *model.Model, step int) error {
	meta := Metadata{Step: step, Config: m.Cfg}
	var offset int64
	for _, p := range m.Params() {
		meta.Tensors = append(meta.Tensors, TensorInfo{
			Name:   p.Name,
			Rows:   p.W.R,
			Cols:   p.W.C,
			Offset: offset,
		})
		offset += int64(len(p.W.Data)) * 4
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode checkpoint metadata: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	w := bufio.NewWriterSize(tmp, 1<<20)
	if _, err := w.WriteString(MagicLCF); err != nil {
		return err
	}
	var scratch [8]byte
	binary.LittleEndian.PutUint32(scratch[:4], FormatVersion)
	if _, err := w.Write(scratch[:4]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(scratch[:], uint64(len(metaBytes)))
	if _, err := w.Write(scratch[:]); err != nil {
		return err
	}
	if _, err := w.Write(metaBytes); err != nil {
		return err
	}
	for _, p := range m.Params() {
		for _, v := range p.W.Data {
			binary.LittleEndian.PutUint32(scratch[:4], math.Float32bits(v))
			if _, err := w.Write(scratch[:4]); err != nil {
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
