package transfer

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"wormhole/internal/domain"
)

type frameKind uint8

const (
	kindManifest frameKind = iota + 1
	kindAnswer
	kindChunk
	kindDone
	kindAck
	kindAbort
)

func (k frameKind) String() string {
	switch k {
	case kindManifest:
		return "manifest"
	case kindAnswer:
		return "answer"
	case kindChunk:
		return "chunk"
	case kindDone:
		return "done"
	case kindAck:
		return "ack"
	case kindAbort:
		return "abort"
	default:
		return fmt.Sprintf("frame(%d)", uint8(k))
	}
}

// frame is the single message type of the transfer protocol; Kind says
// which fields are meaningful.
type frame struct {
	Kind     frameKind            `cbor:"1,keyasint"`
	Manifest *domain.FileManifest `cbor:"2,keyasint,omitempty"`
	Accept   bool                 `cbor:"3,keyasint,omitempty"`
	Data     []byte               `cbor:"4,keyasint,omitempty"`
	Size     int64                `cbor:"5,keyasint,omitempty"`
	Digest   []byte               `cbor:"6,keyasint,omitempty"`
	Reason   string               `cbor:"7,keyasint,omitempty"`
}

func encodeFrame(f frame) ([]byte, error) {
	b, err := cbor.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("transfer: encode %s: %w", f.Kind, err)
	}
	return b, nil
}

func decodeFrame(b []byte) (frame, error) {
	var f frame
	if err := cbor.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("%w: undecodable frame: %v", domain.ErrIntegrityViolation, err)
	}
	return f, nil
}

// codec compresses chunks when the manifest asks for it.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec(c domain.Compression) (*codec, error) {
	switch c {
	case domain.CompressionNone:
		return &codec{}, nil
	case domain.CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(MaxChunkSize),
		)
		if err != nil {
			_ = enc.Close()
			return nil, err
		}
		return &codec{enc: enc, dec: dec}, nil
	}
	return nil, fmt.Errorf("%w: unsupported compression %q", domain.ErrInvalidInput, c)
}

func (c *codec) compress(p []byte) []byte {
	if c.enc == nil {
		return p
	}
	return c.enc.EncodeAll(p, nil)
}

func (c *codec) decompress(p []byte) ([]byte, error) {
	if c.dec == nil {
		return p, nil
	}
	out, err := c.dec.DecodeAll(p, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk does not decompress: %v", domain.ErrIntegrityViolation, err)
	}
	return out, nil
}

func (c *codec) close() {
	if c.enc != nil {
		_ = c.enc.Close()
	}
	if c.dec != nil {
		c.dec.Close()
	}
}
