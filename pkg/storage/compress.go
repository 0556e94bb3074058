package storage

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressionType enumerates the compression codecs a table can be opened
// with. zstd is the only one legdb supports; the type exists so the
// storage interface has somewhere to grow a second codec without changing
// every call site.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionZstd
)

// Compressor encodes and decodes the document values stored in a table. It
// is safe for concurrent use: the underlying zstd encoder/decoder pair is
// built with concurrency disabled so Encode/Decode can be called from
// multiple goroutines (legdb's parallel traversal workers all hold read
// transactions against the same Env).
type Compressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCompressor builds a Compressor at the given zstd level (1-22, zero
// meaning zstd's default), optionally primed with a trained dictionary.
func NewCompressor(dict []byte, level int) (*Compressor, error) {
	encOpts := []zstd.EOption{zstd.WithEncoderLevel(encoderLevel(level)), zstd.WithEncoderConcurrency(1)}
	decOpts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if len(dict) > 0 {
		// dict is raw content (see TrainDictionary), not a formatted zstd
		// dictionary, so it is registered with the raw-dictionary options.
		const rawDictID = 1
		encOpts = append(encOpts, zstd.WithEncoderDictRaw(rawDictID, dict))
		decOpts = append(decOpts, zstd.WithDecoderDictRaw(rawDictID, dict))
	}

	enc, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: build zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("storage: build zstd decoder: %w", err)
	}
	return &Compressor{enc: enc, dec: dec}, nil
}

func encoderLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 0:
		return zstd.SpeedDefault
	case level <= 3:
		return zstd.SpeedFastest
	case level <= 9:
		return zstd.SpeedDefault
	case level <= 15:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// Encode compresses src, returning a new slice.
func (c *Compressor) Encode(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, make([]byte, 0, len(src))), nil
}

// Decode decompresses src, returning a new slice.
func (c *Compressor) Decode(src []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: zstd decode: %w", err)
	}
	return out, nil
}

// Close releases the encoder/decoder's background resources.
func (c *Compressor) Close() {
	c.enc.Close()
	c.dec.Close()
}

// TrainDictionary builds a raw-content zstd dictionary from sample
// documents. klauspost/compress does not implement the COVER/fastcover
// dictionary-training algorithms from the reference zstd library, so this
// builds a "raw content" dictionary instead (zstd treats any byte string
// as a valid raw dictionary): samples are concatenated, most recent first
// on the assumption that recent documents are the most representative,
// and truncated to dictSize.
func TrainDictionary(samples [][]byte, dictSize int) []byte {
	if dictSize <= 0 {
		dictSize = 4096
	}
	dict := make([]byte, 0, dictSize)
	for i := len(samples) - 1; i >= 0 && len(dict) < dictSize; i-- {
		dict = append(dict, samples[i]...)
	}
	if len(dict) > dictSize {
		dict = dict[:dictSize]
	}
	return dict
}
