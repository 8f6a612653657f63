package seq2seq

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	checkpointMagic   = 20241019
	checkpointVersion = 2
	headerLen         = 256
	// dropoutScale stores the dropout probability in parts per million.
	dropoutScale      = 1e6
)

// Save writes model as a 256 x int32 little-endian header followed by
// every parameter as little-endian float64 in Parameters order. Dropout is
// kept to six decimal places.
func Save(w io.Writer, model *Model) error {
	header := make([]int32, headerLen)
	header[0] = checkpointMagic
	header[1] = checkpointVersion
	header[2] = int32(model.Config.Layers)
	header[3] = int32(model.Config.DModel)
	header[4] = int32(model.Config.DFF)
	header[5] = int32(model.Config.Heads)
	header[6] = int32(model.Config.MaxLen)
	header[7] = int32(model.SrcVocab)
	header[8] = int32(model.TgtVocab)
	header[9] = int32(math.Round(model.Config.Dropout * dropoutScale))
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, p := range model.Parameters() {
		if err := binary.Write(w, binary.LittleEndian, p.Value.RawMatrix().Data); err != nil {
			return fmt.Errorf("writing %s: %w", p.Name, err)
		}
	}
	return nil
}

// Load reads a model written by Save.
func Load(r io.Reader) (*Model, error) {
	header := make([]int32, headerLen)
	if err := binary.Read(r, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if header[0] != checkpointMagic || header[1] != checkpointVersion {
		return nil, fmt.Errorf("invalid checkpoint header %d/%d", header[0], header[1])
	}
	cfg := Config{
		Layers:  int(header[2]),
		DModel:  int(header[3]),
		DFF:     int(header[4]),
		Heads:   int(header[5]),
		MaxLen:  int(header[6]),
		Dropout: float64(header[9]) / dropoutScale,
		Seed:    1,
	}
	model, err := BuildModel(int(header[7]), int(header[8]), cfg)
	if err != nil {
		return nil, fmt.Errorf("checkpoint config: %w", err)
	}
	for _, p := range model.Parameters() {
		if err := binary.Read(r, binary.LittleEndian, p.Value.RawMatrix().Data); err != nil {
			return nil, fmt.Errorf("reading %s: %w", p.Name, err)
		}
	}
	return model, nil
}

// SaveFile writes model to path.
func SaveFile(path string, model *Model) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Save(f, model); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a model from path.
func LoadFile(path string) (*Model, error) {
	if path == "" {
		return nil, fmt.Errorf("checkpoint file path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
