package grpc

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/grpc/encoding"
)

// CompressorName is the grpc-encoding identifier of the feed compressor.
const CompressorName = "zstd"

func init() {
	encoding.RegisterCompressor(&zstdCompressor{})
}

// zstdCompressor implements encoding.Compressor with pooled klauspost encoders.
type zstdCompressor struct {
	encoders sync.Pool
	decoders sync.Pool
}

// Name reports the identifier used for zstd encoded messages.
func (*zstdCompressor) Name() string { return CompressorName }

// Compress wraps w so everything written to it is zstd encoded.
func (c *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	//1.- Reuse an encoder when one is pooled; Reset rebinds it to the new writer.
	if enc, ok := c.encoders.Get().(*zstd.Encoder); ok {
		enc.Reset(w)
		return &pooledEncoder{Encoder: enc, pool: &c.encoders}, nil
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &pooledEncoder{Encoder: enc, pool: &c.encoders}, nil
}

// Decompress returns a reader that yields the decoded message.
func (c *zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	if dec, ok := c.decoders.Get().(*zstd.Decoder); ok {
		if err := dec.Reset(r); err != nil {
			c.decoders.Put(dec)
			return nil, fmt.Errorf("zstd reset: %w", err)
		}
		return &pooledDecoder{Decoder: dec, pool: &c.decoders}, nil
	}
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &pooledDecoder{Decoder: dec, pool: &c.decoders}, nil
}

type pooledEncoder struct {
	*zstd.Encoder
	pool *sync.Pool
}

func (e *pooledEncoder) Close() error {
	err := e.Encoder.Close()
	e.pool.Put(e.Encoder)
	return err
}

type pooledDecoder struct {
	*zstd.Decoder
	pool *sync.Pool
}

// Read returns the decoder to the pool once the message is exhausted.
func (d *pooledDecoder) Read(p []byte) (int, error) {
	if d.Decoder == nil {
		return 0, io.EOF
	}
	n, err := d.Decoder.Read(p)
	if err == io.EOF {
		d.pool.Put(d.Decoder)
		d.Decoder = nil
	}
	return n, err
}
