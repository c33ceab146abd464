package grading

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
)

// ErrEmptyResponse is returned by ParseResponse when the payload is not a
// non-empty JSON array.
var ErrEmptyResponse = errors.New("answer must be a non-empty array")

// Response is a submitted answer. It is one of MultipleChoice, TrueFalse,
// ShortAnswer or Malformed.
type Response interface {
	isResponse()
}

// MultipleChoice holds the selected option indices, in selection order.
type MultipleChoice struct{ Indices []int }

// TrueFalse holds the normalized boolean choice.
type TrueFalse struct{ Value bool }

// ShortAnswer holds the submitted free text, untrimmed.
type ShortAnswer struct{ Text string }

// Malformed is any payload whose shape does not fit the question type.
// It always grades as incorrect.
type Malformed struct {
	Raw    json.RawMessage
	Reason string
}

func (MultipleChoice) isResponse() {}
func (TrueFalse) isResponse()      {}
func (ShortAnswer) isResponse()    {}
func (Malformed) isResponse()      {}

// ParseResponse turns the raw answer array into the variant expected by a
// question of type t. Only a missing or empty array is an error; shape
// mismatches come back as Malformed so they can be stored and graded.
func ParseResponse(t Type, raw json.RawMessage) (Response, error) {
	elems, err := splitArray(raw)
	if err != nil {
		return nil, err
	}
	bad := func(reason string) (Response, error) {
		return Malformed{Raw: append(json.RawMessage(nil), raw...), Reason: reason}, nil
	}

	switch t {
	case TypeMultipleChoice:
		idx := make([]int, 0, len(elems))
		for _, e := range elems {
			i, ok := asIndex(e)
			if !ok {
				return bad("option index expected")
			}
			idx = append(idx, i)
		}
		return MultipleChoice{Indices: idx}, nil
	case TypeTrueFalse:
		if len(elems) != 1 {
			return bad("exactly one value expected")
		}
		v, ok := asBool(elems[0])
		if !ok {
			return bad("boolean expected")
		}
		return TrueFalse{Value: v}, nil
	case TypeShortAnswer:
		if len(elems) != 1 {
			return bad("exactly one text expected")
		}
		s, ok := asString(elems[0])
		if !ok {
			return bad("text expected")
		}
		return ShortAnswer{Text: s}, nil
	default:
		return bad("unknown question type")
	}
}

// CheckShape reports ErrEmptyResponse unless raw is a non-empty JSON array.
func CheckShape(raw json.RawMessage) error {
	_, err := splitArray(raw)
	return err
}

func splitArray(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyResponse
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, ErrEmptyResponse
	}
	if len(elems) == 0 {
		return nil, ErrEmptyResponse
	}
	return elems, nil
}

func decodeValue(raw json.RawMessage) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func asIndex(raw json.RawMessage) (int, bool) {
	v, ok := decodeValue(raw)
	if !ok {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil || i < 0 || i > math.MaxInt32 {
		return 0, false
	}
	return int(i), true
}

func asString(raw json.RawMessage) (string, bool) {
	v, ok := decodeValue(raw)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func asBool(raw json.RawMessage) (bool, bool) {
	v, ok := decodeValue(raw)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		return parseBoolLoose(t)
	case json.Number:
		return parseBoolLoose(t.String())
	default:
		return false, false
	}
}

// parseBoolLoose accepts the usual form spellings of a boolean.
func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true, true
	case "0", "false", "off", "no", "":
		return false, true
	}
	return false, false
}
