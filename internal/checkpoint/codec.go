// internal/checkpoint/codec.go
package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"lifeline/internal/state"
)

// Codec serializes and compresses session state per category
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec creates a codec with the given zstd compression level
func NewCodec(compressionLevel int) *Codec {
	encoder, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	decoder, _ := zstd.NewReader(nil)

	return &Codec{
		encoder: encoder,
		decoder: decoder,
	}
}

// Compress marshals and compresses each category independently. Failure
// on any one category fails the whole call; no partial result is returned.
func (c *Codec) Compress(s *state.SessionState) (*CompressedState, error) {
	conversation, err := c.compressCategory(state.CategoryConversation, s.Conversation)
	if err != nil {
		return nil, err
	}
	task, err := c.compressCategory(state.CategoryTask, s.Task)
	if err != nil {
		return nil, err
	}
	file, err := c.compressCategory(state.CategoryFile, s.File)
	if err != nil {
		return nil, err
	}
	tool, err := c.compressCategory(state.CategoryTool, s.Tool)
	if err != nil {
		return nil, err
	}
	signals, err := c.compressCategory(state.CategorySignals, s.Signals)
	if err != nil {
		return nil, err
	}
	preferences, err := c.compressCategory(state.CategoryPreferences, s.Preferences)
	if err != nil {
		return nil, err
	}

	return &CompressedState{
		Conversation: conversation,
		Task:         task,
		File:         file,
		Tool:         tool,
		Signals:      signals,
		Preferences:  preferences,
	}, nil
}

func (c *Codec) compressCategory(category state.Category, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &CompressionError{Category: category, Err: err}
	}
	return c.encoder.EncodeAll(data, nil), nil
}

// Decompress inflates one category blob into the given destination.
// Each category decompresses independently so a restorer can tolerate
// individual failures.
func (c *Codec) Decompress(category state.Category, blob []byte, dest interface{}) error {
	if len(blob) == 0 {
		return fmt.Errorf("empty %s blob", category)
	}

	data, err := c.decoder.DecodeAll(blob, nil)
	if err != nil {
		return fmt.Errorf("decompress %s state: %w", category, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s state: %w", category, err)
	}
	return nil
}

// Raw decompresses one category blob without unmarshaling
func (c *Codec) Raw(category state.Category, blob []byte) ([]byte, error) {
	data, err := c.decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s state: %w", category, err)
	}
	return data, nil
}
