package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// MaxEnvelopeSize matches the 1 MiB cap browsers place on native messages.
const MaxEnvelopeSize = 1024 * 1024

// Codec turns envelopes into transport payloads and back. Decode is the
// trust boundary: it must reject anything that is not exactly one valid
// envelope.
type Codec interface {
	Name() string
	Encode(Envelope) ([]byte, error)
	Decode([]byte) (Envelope, error)
}

var (
	// JSON is the default wire codec.
	JSON Codec = jsonCodec{}
	// CBOR uses the same field names in deterministic CBOR.
	CBOR Codec = cborCodec{}
)

// LookupCodec resolves a configured codec name.
func LookupCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(e Envelope) ([]byte, error) {
	w, err := toWire(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (jsonCodec) Decode(data []byte) (Envelope, error) {
	if len(data) > MaxEnvelopeSize {
		return Envelope{}, fmt.Errorf("%w: %d bytes exceeds limit", ErrMalformed, len(data))
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w wireEnvelope
	if err := dec.Decode(&w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Envelope{}, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	if err := checkKeys(data); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fromWire(w)
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("message: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxNestedLevels:   16,
	}.DecMode()
	if err != nil {
		panic("message: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborCodec struct{}

func (cborCodec) Name() string { return "cbor" }

func (cborCodec) Encode(e Envelope) ([]byte, error) {
	w, err := toWire(e)
	if err != nil {
		return nil, err
	}
	return cborEnc.Marshal(w)
}

func (cborCodec) Decode(data []byte) (Envelope, error) {
	if len(data) > MaxEnvelopeSize {
		return Envelope{}, fmt.Errorf("%w: %d bytes exceeds limit", ErrMalformed, len(data))
	}
	var w wireEnvelope
	if err := cborDec.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fromWire(w)
}
