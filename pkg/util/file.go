package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Wrapping is the transport compression implied by a file name
type Wrapping int

const (
	Plain Wrapping = iota
	Gzip
	Zstd
)

// WrappingOf looks at the extension of name, "-" is always plain
func WrappingOf(name string) Wrapping {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	default:
		return Plain
	}
}

// Unwrap reads all of r, decompressing it according to w
func Unwrap(r io.Reader, w Wrapping) ([]byte, error) {
	switch w {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()
		return io.ReadAll(dec)
	default:
		return io.ReadAll(r)
	}
}

// Wrap compresses data according to w
func Wrap(data []byte, w Wrapping) ([]byte, error) {
	var buf bytes.Buffer
	switch w {
	case Gzip:
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	case Zstd:
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := enc.Write(data); err != nil {
			enc.Close()
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	default:
		return data, nil
	}
	return buf.Bytes(), nil
}

// ReadFile reads path, or stdin for "-", undoing any .gz/.zst wrapping
func ReadFile(path string) ([]byte, error) {
	if path == "-" {
		return Unwrap(os.Stdin, Plain)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return Unwrap(f, WrappingOf(path))
}

// WriteFile writes data to path, or stdout for "-", applying any .gz/.zst wrapping
func WriteFile(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	wrapped, err := Wrap(data, WrappingOf(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, wrapped, 0644)
}
