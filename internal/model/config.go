package model

import "fmt"

// CellKind names the recurrent transition function. The model is one type
// parameterized by the cell; there is no subclass per architecture.
type CellKind string

const (
	CellRNN  CellKind = "rnn"
	CellLSTM CellKind = "lstm"
	CellGRU  CellKind = "gru"
)

// ParseCellKind validates a config string.
func ParseCellKind(s string) (CellKind, error) {
	switch CellKind(s) {
	case CellRNN, CellLSTM, CellGRU:
		return CellKind(s), nil
	}
	return "", fmt.Errorf("unknown cell kind %q (want rnn, lstm or gru)", s)
}

// Config fixes the model architecture. It is persisted alongside the
// weights so a checkpoint can be reopened without the training flags.
type Config struct {
	VocabSize int      `json:"vocab_size"`
	PadID     int      `json:"pad_id"`
	EmbedDim  int      `json:"embed_dim"`
	HiddenDim int      `json:"hidden_dim"`
	NumLayers int      `json:"num_layers"`
	NumLinear int      `json:"num_linear"`
	Dropout   float32  `json:"dropout"`
	Cell      CellKind `json:"cell"`
	Seed      int64    `json:"seed"`
}

// Validate reports the first structural problem with the config.
func (c Config) Validate() error {
	switch {
	case c.VocabSize < 2:
		return fmt.Errorf("vocab size %d too small", c.VocabSize)
	case c.PadID < 0 || c.PadID >= c.VocabSize:
		return fmt.Errorf("pad id %d out of range", c.PadID)
	case c.EmbedDim < 1:
		return fmt.Errorf("embed dim %d must be positive", c.EmbedDim)
	case c.HiddenDim < 1:
		return fmt.Errorf("hidden dim %d must be positive", c.HiddenDim)
	case c.NumLayers < 1:
		return fmt.Errorf("need at least one recurrent layer, got %d", c.NumLayers)
	case c.NumLinear < 0:
		return fmt.Errorf("negative linear layer count %d", c.NumLinear)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("dropout %f outside [0,1)", c.Dropout)
	}
	if _, err := ParseCellKind(string(c.Cell)); err != nil {
		return err
	}
	return nil
}
