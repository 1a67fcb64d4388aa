package doclite

import (
	"encoding/json"
	"fmt"
)

// CodecConfig configures document serialization for one Connection. It is
// captured at Open and must not change afterwards: cached statements embed
// JSON paths derived under its naming convention.
type CodecConfig struct {
	// Naming maps Go field names to JSON member names when deriving paths
	// with PathOf. It must agree with how documents are actually encoded
	// (struct tags win over the convention on both sides).
	Naming NamingConvention
}

// Codec turns application values into stored JSON bytes and back. Failures
// from the underlying encoder are bridged as ErrCodec, never masked.
type Codec struct {
	config CodecConfig
}

func NewCodec(config CodecConfig) *Codec {
	return &Codec{config: config}
}

func (c *Codec) Naming() NamingConvention { return c.config.Naming }

func (c *Codec) Marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: serialize %T: %v", ErrCodec, value, err)
	}
	return data, nil
}

func (c *Codec) Unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: deserialize into %T: %v", ErrCodec, out, err)
	}
	return nil
}
