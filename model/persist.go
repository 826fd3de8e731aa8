package model

import (
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

const formatVersion = 1

type layoutFile struct {
	InputDim   int   `msgpack:"input_dim"`
	Hidden     []int `msgpack:"hidden"`
	Bottleneck int   `msgpack:"bottleneck"`
}

type modelFile struct {
	Version     int         `msgpack:"version"`
	RunID       string      `msgpack:"run_id"`
	Features    string      `msgpack:"features"`
	Layout      layoutFile  `msgpack:"layout"`
	Layers      []Layer     `msgpack:"layers"`
	Norms       []BatchNorm `msgpack:"norms"`
	Calibration Calibration `msgpack:"calibration"`
}

// Save writes the model with msgpack.
func (a *Autoencoder) Save(w io.Writer) error {
	f := modelFile{
		Version:  formatVersion,
		RunID:    a.RunID,
		Features: a.Features,
		Layout: layoutFile{
			InputDim:   a.Layout.InputDim,
			Hidden:     a.Layout.Hidden,
			Bottleneck: a.Layout.Bottleneck,
		},
		Layers:      a.Layers,
		Norms:       a.Norms,
		Calibration: a.Calibration,
	}
	return msgpack.NewEncoder(w).Encode(&f)
}

// Load reads a model written by Save. The model starts in inference mode.
func Load(r io.Reader) (*Autoencoder, error) {
	var f modelFile
	if err := msgpack.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("model: decode: %w", err)
	}
	if f.Version != formatVersion {
		return nil, fmt.Errorf("model: unsupported format version %d", f.Version)
	}
	a := &Autoencoder{
		Layout: Layout{
			InputDim:   f.Layout.InputDim,
			Hidden:     f.Layout.Hidden,
			Bottleneck: f.Layout.Bottleneck,
		},
		Layers:      f.Layers,
		Norms:       f.Norms,
		RunID:       f.RunID,
		Features:    f.Features,
		Calibration: f.Calibration,
	}
	if err := a.consistent(); err != nil {
		return nil, err
	}
	return a, nil
}

// consistent checks that the stored parameters match the layout.
func (a *Autoencoder) consistent() error {
	if err := a.Layout.Validate(); err != nil {
		return err
	}
	dims := a.Layout.Dims()
	if len(a.Layers) != len(dims)-1 || len(a.Norms) != len(dims)-2 {
		return fmt.Errorf("model: %d layers and %d norms for layout %v", len(a.Layers), len(a.Norms), dims)
	}
	for i, l := range a.Layers {
		if l.In != dims[i] || l.Out != dims[i+1] || len(l.W) != l.In*l.Out || len(l.B) != l.Out {
			return fmt.Errorf("model: layer %d does not match layout %v", i, dims)
		}
	}
	for i, bn := range a.Norms {
		d := dims[i+1]
		if len(bn.Gamma) != d || len(bn.Beta) != d || len(bn.RunningMean) != d || len(bn.RunningVar) != d {
			return fmt.Errorf("model: norm %d does not match layout %v", i, dims)
		}
	}
	return nil
}

// SaveFile writes the model to name.
func (a *Autoencoder) SaveFile(name string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := a.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a model from name.
func LoadFile(name string) (*Autoencoder, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
