// Package filestore persists inventory snapshots as a single JSON object per file.
//
// Keys keep the stock's insertion order and the object is indented with four spaces:
//
//	{
//	    "apple": 7,
//	    "123": 10
//	}
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	domain "github.com/Zhima-Mochi/stockkeeper/internal/domain/inventory"
	"github.com/Zhima-Mochi/stockkeeper/internal/observability"
	"github.com/Zhima-Mochi/stockkeeper/internal/observability/logctx"
)

const indent = "    "

// Store implements domain.Repository on the local filesystem.
type Store struct {
	perm fs.FileMode
	log  observability.Logger
}

func New(logger observability.Logger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{perm: 0o644, log: logger.With(observability.F("component", "filestore"))}
}

// Load reads path. A missing file yields an empty snapshot and no error.
func (s *Store) Load(ctx context.Context, path string) (domain.Snapshot, error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("stock_file_not_found")
			return domain.Snapshot{}, nil
		}
		return nil, fmt.Errorf("filestore: read %s: %w", path, err)
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("filestore: %s: %w", path, err)
	}
	logger.Debug("stock_file_read", observability.F("items", len(snap)))
	return snap, nil
}

// Save overwrites path with snap.
func (s *Store) Save(ctx context.Context, path string, snap domain.Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}
	if err := os.WriteFile(path, data, s.perm); err != nil {
		return fmt.Errorf("filestore: write %s: %w", path, err)
	}
	logctx.FromOr(ctx, s.log).Debug("stock_file_written",
		observability.F("path", path),
		observability.F("items", len(snap)),
	)
	return nil
}

// EncodeSnapshot renders snap as an indented JSON object in snapshot order, newline terminated.
func EncodeSnapshot(snap domain.Snapshot) ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, e := range snap {
		if i > 0 {
			compact.WriteByte(',')
		}
		key, err := json.Marshal(e.Item)
		if err != nil {
			return nil, err
		}
		compact.Write(key)
		compact.WriteByte(':')
		fmt.Fprintf(&compact, "%d", e.Quantity)
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", indent); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// DecodeSnapshot parses a JSON object of item → integer quantity, preserving key order.
// Every failure, including non-integer or non-positive quantities, wraps domain.ErrDecode.
func DecodeSnapshot(data []byte) (domain.Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, decodeErr(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, decodeErr(fmt.Errorf("expected a JSON object, got %v", tok))
	}

	snap := domain.Snapshot{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, decodeErr(err)
		}
		item, _ := tok.(string)

		tok, err = dec.Token()
		if err != nil {
			return nil, decodeErr(err)
		}
		num, ok := tok.(json.Number)
		if !ok {
			return nil, decodeErr(fmt.Errorf("item %q: quantity must be a number, got %v", item, tok))
		}
		qty, err := strconv.ParseInt(num.String(), 10, strconv.IntSize)
		if err != nil {
			return nil, decodeErr(fmt.Errorf("item %q: quantity %s is not an integer", item, num))
		}
		snap = append(snap, domain.Entry{Item: item, Quantity: int(qty)})
	}

	if _, err := dec.Token(); err != nil {
		return nil, decodeErr(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, decodeErr(errors.New("unexpected data after JSON object"))
	}
	if err := snap.Validate(); err != nil {
		return nil, decodeErr(err)
	}
	return snap, nil
}

func decodeErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrDecode, err)
}
