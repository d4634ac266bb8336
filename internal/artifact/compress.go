package artifact

import (
	"fmt"

	"github.com/ashureev/codespace/internal/domain"
	"github.com/klauspost/compress/zstd"
)

// Encoder and decoder are safe for concurrent use and reused across calls.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("artifact: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("artifact: zstd decoder initialization failed: " + err.Error())
	}
}

// encode compresses data when that makes it smaller.
func encode(data []byte) ([]byte, domain.Codec) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return data, domain.CodecNone
	}
	return compressed, domain.CodecZstd
}

func decode(stored []byte, codec domain.Codec, size int) ([]byte, error) {
	switch codec {
	case domain.CodecNone:
		return stored, nil
	case domain.CodecZstd:
		out, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}
}
