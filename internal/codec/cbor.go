// Package codec encodes version snapshots as CBOR.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// snapshot always produces the same bytes and can be digested. Model
// element types are registered under fixed tag numbers so that a decoded
// snapshot holds the same Go types that were recorded.
package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/i-m-c/go-inheritance/model"
)

// FirstTag is the tag number assigned to the first registered type.
// Tag numbers follow the order of model.Types and must never be reordered.
const FirstTag = 61000

// Codec is a configured CBOR encoder/decoder pair.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var defaultCodec = mustNew()

func mustNew() *Codec {
	c, err := New()
	if err != nil {
		panic("codec: CBOR initialization failed: " + err.Error())
	}
	return c
}

// Default returns the codec with the built-in model types registered.
func Default() *Codec { return defaultCodec }

// New builds a codec registering model.Types followed by extra, each
// under the next free tag number.
func New(extra ...any) (*Codec, error) {
	tags := cbor.NewTagSet()
	opts := cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired}

	types := append(model.Types(), extra...)
	for i, v := range types {
		if err := tags.Add(opts, reflect.TypeOf(v), uint64(FirstTag+i)); err != nil {
			return nil, fmt.Errorf("register %T: %w", v, err)
		}
	}

	enc, err := cbor.CoreDetEncOptions().EncModeWithTags(tags)
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}

	dec, err := cbor.DecOptions{
		// Snapshots only use string keys; decode untyped maps as
		// map[string]any rather than map[any]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecModeWithTags(tags)
	if err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}

	return &Codec{enc: enc, dec: dec}, nil
}

// Marshal encodes v.
func (c *Codec) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

// Unmarshal decodes data into v.
func (c *Codec) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
