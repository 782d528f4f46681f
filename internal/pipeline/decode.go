package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/programme-lv/rayjudge/api"
)

// ErrMalformed marks payloads that can never be judged.
var ErrMalformed = errors.New("malformed judge request")

const maxDecodedSize = 64 << 20

var zstdDecoder = mustZstdDecoder()

func mustZstdDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		panic(fmt.Errorf("failed to create zstd decoder: %w", err))
	}
	return dec
}

// DecodePayload turns a message body into a judge config. Bodies may be
// zstd or snappy compressed as announced by the content encoding.
func DecodePayload(body []byte, contentEncoding string) (*api.JudgeConfig, error) {
	raw, err := decompress(body, contentEncoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: payload is not valid utf-8", ErrMalformed)
	}
	cfg, err := api.ParseJudgeConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return cfg, nil
}

func decompress(body []byte, contentEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity", "utf-8", "utf8":
		return body, nil
	case "zstd":
		out, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decode zstd payload: %w", err)
		}
		return out, nil
	case "snappy":
		n, err := snappy.DecodedLen(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode snappy payload: %w", err)
		}
		if n > maxDecodedSize {
			return nil, fmt.Errorf("snappy payload too large: %d bytes", n)
		}
		out, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode snappy payload: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}
}
