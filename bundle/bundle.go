package bundle

import (
	"errors"
	"fmt"

	"github.com/neurlang/melae/windowing"
	"gonum.org/v1/gonum/mat"
)

// ErrLengthMismatch is returned by Unbundle when the clip lengths do not
// add up to the row count of the matrix.
var ErrLengthMismatch = errors.New("bundle: clip lengths do not match row count")

// ErrShapeMismatch is windowing.ErrShapeMismatch.
var ErrShapeMismatch = windowing.ErrShapeMismatch

// Clip is the windowed feature matrix of one named recording. A clip too
// short for a single window has an empty Features matrix.
type Clip struct {
	Name     string
	Features *mat.Dense
}

// Dataset is the vertical concatenation of clips in order. Filenames and
// ClipLengths are parallel and ClipLengths sums to the row count.
type Dataset struct {
	Features    *mat.Dense
	Filenames   []string
	ClipLengths []int
}

// Rows returns the total number of feature rows.
func (d *Dataset) Rows() int {
	if d.Features == nil || d.Features.IsEmpty() {
		return 0
	}
	r, _ := d.Features.Dims()
	return r
}

// Clips splits the dataset back into named clips.
func (d *Dataset) Clips() ([]Clip, error) {
	parts, err := Unbundle(d.Features, d.ClipLengths)
	if err != nil {
		return nil, err
	}
	clips := make([]Clip, len(parts))
	for i, p := range parts {
		clips[i] = Clip{Name: d.Filenames[i], Features: p}
	}
	return clips, nil
}

func rows(m *mat.Dense) (int, int) {
	if m == nil || m.IsEmpty() {
		return 0, 0
	}
	return m.Dims()
}

// Bundle stacks the clips vertically in the given order.
func Bundle(clips []Clip) (*Dataset, error) {
	d := &Dataset{
		Filenames:   make([]string, len(clips)),
		ClipLengths: make([]int, len(clips)),
	}
	total, width := 0, -1
	for i, c := range clips {
		r, cols := rows(c.Features)
		d.Filenames[i] = c.Name
		d.ClipLengths[i] = r
		if r == 0 {
			continue
		}
		if width >= 0 && cols != width {
			return nil, fmt.Errorf("%w: clip %s has %d columns, want %d", ErrShapeMismatch, c.Name, cols, width)
		}
		width = cols
		total += r
	}
	if total == 0 {
		d.Features = &mat.Dense{}
		return d, nil
	}

	d.Features = mat.NewDense(total, width, nil)
	at := 0
	for _, c := range clips {
		r, _ := rows(c.Features)
		if r == 0 {
			continue
		}
		d.Features.Slice(at, at+r, 0, width).(*mat.Dense).Copy(c.Features)
		at += r
	}
	return d, nil
}

// Unbundle splits m into consecutive blocks of clipLengths rows. Each block
// is a copy; zero lengths give empty matrices.
func Unbundle(m mat.Matrix, clipLengths []int) ([]*mat.Dense, error) {
	total, cols := 0, 0
	if m != nil {
		if d, ok := m.(*mat.Dense); !ok || !d.IsEmpty() {
			total, cols = m.Dims()
		}
	}

	sum := 0
	for i, n := range clipLengths {
		if n < 0 {
			return nil, fmt.Errorf("%w: clip %d has length %d", ErrLengthMismatch, i, n)
		}
		sum += n
	}
	if sum != total {
		return nil, fmt.Errorf("%w: lengths sum to %d, matrix has %d rows", ErrLengthMismatch, sum, total)
	}

	parts := make([]*mat.Dense, len(clipLengths))
	at := 0
	row := make([]float64, cols)
	for i, n := range clipLengths {
		if n == 0 {
			parts[i] = &mat.Dense{}
			continue
		}
		p := mat.NewDense(n, cols, nil)
		for r := 0; r < n; r++ {
			p.SetRow(r, mat.Row(row, at+r, m))
		}
		parts[i] = p
		at += n
	}
	return parts, nil
}
