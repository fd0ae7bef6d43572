package progs

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Images are a CBOR snapshot of a Program used for fixtures and tooling.
// Decoding performs no validation; that is the loader's job.

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("progs: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// MarshalImage serializes a Program to CBOR bytes.
func MarshalImage(p *Program) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("progs: nil program")
	}
	return imageEncMode.Marshal(p)
}

// UnmarshalImage deserializes a Program from CBOR bytes.
func UnmarshalImage(data []byte) (*Program, error) {
	var p Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("progs: unmarshal image: %w", err)
	}
	if p.EntityFields <= 0 {
		p.EntityFields = DefaultEntityFields
	}
	return &p, nil
}
