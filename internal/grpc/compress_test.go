package grpc

import (
	"bytes"
	"io"
	"testing"

	"google.golang.org/grpc/encoding"
)

func TestZstdCompressorRegistered(t *testing.T) {
	if encoding.GetCompressor(CompressorName) == nil {
		t.Fatal("expected zstd compressor to be registered")
	}
}

func TestZstdRoundTripReusesEncoders(t *testing.T) {
	compressor := encoding.GetCompressor(CompressorName)
	for i, payload := range []string{"turn-ended", "casualty casualty casualty casualty"} {
		//1.- Encode through the pooled writer.
		var buf bytes.Buffer
		w, err := compressor.Compress(&buf)
		if err != nil {
			t.Fatalf("round %d compress: %v", i, err)
		}
		if _, err := w.Write([]byte(payload)); err != nil {
			t.Fatalf("round %d write: %v", i, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("round %d close: %v", i, err)
		}

		//2.- Decode and compare.
		r, err := compressor.Decompress(&buf)
		if err != nil {
			t.Fatalf("round %d decompress: %v", i, err)
		}
		decoded, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("round %d read: %v", i, err)
		}
		if string(decoded) != payload {
			t.Fatalf("round %d mismatch: got %q want %q", i, decoded, payload)
		}
	}
}
