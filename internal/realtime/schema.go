package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxFrameBytes bounds a single inbound frame.
const MaxFrameBytes = 64 << 10

// ErrInvalidFrame wraps every frame shape violation.
var ErrInvalidFrame = errors.New("invalid frame")

var frameSchema = compileFrameSchema()

func compileFrameSchema() *jsonschema.Schema {
	names := make([]string, 0, len(InboundKinds()))
	for _, k := range InboundKinds() {
		names = append(names, k.String())
	}

	doc := map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"kind"},
		"properties": map[string]any{
			"kind": map[string]any{"type": "string", "enum": names},
			"ref":  map[string]any{"type": "string", "maxLength": 128},
			"data": map[string]any{"type": "object"},
		},
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return jsonschema.MustCompileString("frame.json", string(raw))
}

// ParseFrame validates raw against the inbound frame schema and decodes it.
func ParseFrame(raw []byte) (Frame, error) {
	if len(raw) > MaxFrameBytes {
		return Frame{}, fmt.Errorf("%w: frame exceeds %d bytes", ErrInvalidFrame, MaxFrameBytes)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := frameSchema.Validate(doc); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return frame, nil
}
