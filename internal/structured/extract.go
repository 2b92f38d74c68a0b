// Package structured recovers JSON payloads and grades from free-form model replies.
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"digital-dean/internal/models"

	"github.com/tidwall/gjson"
)

// Shape is the JSON value kind a caller expects
type Shape int

const (
	Array Shape = iota
	Object
)

func (s Shape) brackets() (byte, byte) {
	if s == Object {
		return '{', '}'
	}
	return '[', ']'
}

func (s Shape) String() string {
	if s == Object {
		return "object"
	}
	return "array"
}

var (
	errNoBrackets = errors.New("no brackets found")
	errInvalid    = errors.New("invalid json")

	fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n?(.*?)```")
	leadFenceRe   = regexp.MustCompile("^```[a-zA-Z]*")
)

// ExtractJSON recovers a JSON value of the given shape from raw model output. It tries
// FromBrackets, then FromFences, and fails with a *models.MalformedOutputError.
func ExtractJSON(raw string, shape Shape) (json.RawMessage, error) {
	v, err := FromBrackets(raw, shape)
	if err == nil {
		return v, nil
	}
	v, fenceErr := FromFences(raw, shape)
	if fenceErr == nil {
		return v, nil
	}
	return nil, &models.MalformedOutputError{
		Raw: raw,
		Err: fmt.Errorf("expected %s: %w; %w", shape, err, fenceErr),
	}
}

// Decode extracts a JSON value of the given shape and unmarshals it into v
func Decode(raw string, shape Shape, v any) error {
	data, err := ExtractJSON(raw, shape)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &models.MalformedOutputError{Raw: raw, Err: err}
	}
	return nil
}

// FromBrackets slices from the first opening bracket to the last closing one and parses the slice
func FromBrackets(raw string, shape Shape) (json.RawMessage, error) {
	open, closing := shape.brackets()
	start := strings.IndexByte(raw, open)
	end := strings.LastIndexByte(raw, closing)
	if start < 0 || end <= start {
		return nil, fmt.Errorf("bracket slice: %w", errNoBrackets)
	}
	return validate(raw[start:end+1], shape, "bracket slice")
}

// FromFences strips code fence markers and parses the remainder. A fenced block anywhere in
// raw is preferred; otherwise leading and trailing fence tokens are trimmed.
func FromFences(raw string, shape Shape) (json.RawMessage, error) {
	var body string
	if m := fencedBlockRe.FindStringSubmatch(raw); m != nil {
		body = m[1]
	} else {
		body = strings.TrimSpace(raw)
		body = leadFenceRe.ReplaceAllString(body, "")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	return validate(strings.TrimSpace(body), shape, "fence strip")
}

func validate(candidate string, shape Shape, step string) (json.RawMessage, error) {
	if !gjson.Valid(candidate) {
		return nil, fmt.Errorf("%s: %w", step, errInvalid)
	}
	res := gjson.Parse(candidate)
	if (shape == Array && !res.IsArray()) || (shape == Object && !res.IsObject()) {
		return nil, fmt.Errorf("%s: %w: not an %s", step, errInvalid, shape)
	}
	return json.RawMessage(candidate), nil
}
