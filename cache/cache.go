package cache

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/neurlang/melae/internal/logging"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/x448/float16"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// ErrNotFound is returned when no features are cached for a clip.
var ErrNotFound = errors.New("cache: not found")

// Precision selects how feature values are stored.
type Precision string

const (
	Float64 Precision = "float64"
	Float16 Precision = "float16"
)

// ParsePrecision accepts "float64", "float16" or "" (float64).
func ParsePrecision(s string) (Precision, error) {
	switch Precision(s) {
	case "", Float64:
		return Float64, nil
	case Float16:
		return Float16, nil
	}
	return "", fmt.Errorf("cache: unknown precision %q", s)
}

// Options configures a Store.
type Options struct {
	// Dir is the badger directory. Required unless InMemory is set.
	Dir string

	// InMemory keeps everything in memory; used by tests.
	InMemory bool

	Precision Precision
	Logger    *zap.Logger
}

// Store is a feature cache backed by BadgerDB.
type Store struct {
	db        *badger.DB
	precision Precision
	log       *zap.Logger
}

// Open opens or creates the cache.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("cache: Options.Dir is required for on-disk mode")
	}
	precision, err := ParsePrecision(string(opts.Precision))
	if err != nil {
		return nil, err
	}
	log := logging.OrNop(opts.Logger)

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(logging.NewBadger(log))
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", opts.Dir, err)
	}
	return &Store{db: db, precision: precision, log: log}, nil
}

// Fingerprint derives a stable key prefix from a description of everything
// that influences the cached features.
func Fingerprint(description string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(description)).String()
}

// entry is the msgpack form of one matrix.
type entry struct {
	Rows      int       `msgpack:"rows"`
	Cols      int       `msgpack:"cols"`
	Precision Precision `msgpack:"precision"`
	Data      []float64 `msgpack:"data,omitempty"`
	Half      []uint16  `msgpack:"half,omitempty"`
}

func key(fingerprint, name string) []byte {
	return []byte("feat:" + fingerprint + ":" + name)
}

func prefix(fingerprint string) []byte {
	return []byte("feat:" + fingerprint + ":")
}

func encode(m *mat.Dense, p Precision) ([]byte, error) {
	e := entry{Precision: p}
	if m != nil && !m.IsEmpty() {
		e.Rows, e.Cols = m.Dims()
		values := make([]float64, 0, e.Rows*e.Cols)
		for i := 0; i < e.Rows; i++ {
			values = append(values, m.RawRowView(i)...)
		}
		if p == Float16 {
			e.Half = make([]uint16, len(values))
			for i, v := range values {
				e.Half[i] = float16.Fromfloat32(float32(v)).Bits()
			}
		} else {
			e.Data = values
		}
	}
	return msgpack.Marshal(&e)
}

func decode(b []byte) (*mat.Dense, error) {
	var e entry
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	if e.Rows == 0 || e.Cols == 0 {
		return &mat.Dense{}, nil
	}
	values := e.Data
	if e.Precision == Float16 {
		values = make([]float64, len(e.Half))
		for i, h := range e.Half {
			values[i] = float64(float16.Frombits(h).Float32())
		}
	}
	if len(values) != e.Rows*e.Cols {
		return nil, fmt.Errorf("cache: corrupt entry: %d values for %dx%d", len(values), e.Rows, e.Cols)
	}
	return mat.NewDense(e.Rows, e.Cols, values), nil
}

// Get returns the cached features of name, or ErrNotFound.
func (s *Store) Get(_ context.Context, fingerprint, name string) (*mat.Dense, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(fingerprint, name))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", name, err)
	}
	m, err := decode(val)
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", name, err)
	}
	return m, nil
}

// Put stores the features of name, replacing any previous value.
func (s *Store) Put(_ context.Context, fingerprint, name string, m *mat.Dense) error {
	val, err := encode(m, s.precision)
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", name, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(fingerprint, name), val)
	})
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", name, err)
	}
	s.log.Debug("cached features", zap.String("clip", name), zap.Int("bytes", len(val)))
	return nil
}

// Delete removes one entry. Missing entries are not an error.
func (s *Store) Delete(_ context.Context, fingerprint, name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(fingerprint, name))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Names iterates over the clip names cached under fingerprint in key order.
func (s *Store) Names(_ context.Context, fingerprint string) iter.Seq2[string, error] {
	p := prefix(fingerprint)
	return func(yield func(string, error) bool) {
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = p
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				k := string(it.Item().KeyCopy(nil))
				if !yield(strings.TrimPrefix(k, string(p)), nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield("", err)
		}
	}
}

// Drop removes every entry cached under fingerprint.
func (s *Store) Drop(ctx context.Context, fingerprint string) error {
	var keys [][]byte
	for name, err := range s.Names(ctx, fingerprint) {
		if err != nil {
			return err
		}
		keys = append(keys, key(fingerprint, name))
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
