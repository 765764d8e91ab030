package keyframe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed wraps every decode failure. A malformed payload is rejected
// as a whole; none of its keyframes are applied.
var ErrMalformed = errors.New("keyframe: malformed payload")

// Decode parses one inbound payload. Unknown fields are ignored and missing
// fields take their zero value, except Creation.RigID which defaults to
// IDUndefined.
func Decode(payload []byte) ([]Keyframe, error) {
	wrapper, err := DecodeWrapper(payload)
	if err != nil {
		return nil, err
	}
	return wrapper.Keyframes, nil
}

// DecodeWrapper parses a payload or replay file into its wrapper.
func DecodeWrapper(payload []byte) (Wrapper, error) {
	var wrapper Wrapper
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return wrapper, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if trimmed[0] != '{' {
		return wrapper, fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return Wrapper{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return wrapper, nil
}
