package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/engelke/fashion-hack-2024/internal/domain"
)

var codeFenceRe = regexp.MustCompile("```[A-Za-z0-9_-]*")

// ParseAttributes extracts the five clothing attributes from free-form model output.
//
// The whole text is decoded when it is valid JSON; otherwise the text is
// scanned for the first balanced {...} or [...] block that decodes. An object
// is used as the answer. An array holding objects means the model answered
// with a list, which fails with ParseInvalidType whether or not prose
// surrounds it; arrays of plain values are treated as prose. Missing keys
// become empty strings. A top-level JSON value that is not an object fails
// with ParseInvalidType, text without any decodable object with
// ParseNoJSONFound.
func ParseAttributes(raw string) (domain.Attributes, error) {
	text := strings.TrimSpace(codeFenceRe.ReplaceAllString(stripThinking(raw), ""))
	if text == "" {
		return domain.Attributes{}, &domain.ParseError{Kind: domain.ParseNoJSONFound}
	}

	if json.Valid([]byte(text)) {
		whole, err := decodeJSON(text)
		if err != nil {
			return domain.Attributes{}, &domain.ParseError{Kind: domain.ParseNoJSONFound, Err: err}
		}
		obj, ok := whole.(map[string]interface{})
		if !ok {
			return domain.Attributes{}, invalidType(whole)
		}
		return attributesFromObject(obj), nil
	}

	obj, err := firstObject(text)
	if err != nil {
		return domain.Attributes{}, err
	}
	return attributesFromObject(obj), nil
}

func invalidType(v interface{}) error {
	return &domain.ParseError{
		Kind: domain.ParseInvalidType,
		Err:  fmt.Errorf("top-level JSON value is %s, want object", jsonKind(v)),
	}
}

// firstObject returns the first balanced block of s that decodes as an
// object. Scanning stops at the first block that decodes.
func firstObject(s string) (map[string]interface{}, error) {
	for start := 0; start < len(s); start++ {
		if s[start] != '{' && s[start] != '[' {
			continue
		}
		end := matchBracket(s, start)
		if end == -1 {
			continue
		}
		v, err := decodeJSON(s[start : end+1])
		if err != nil {
			continue
		}
		switch val := v.(type) {
		case map[string]interface{}:
			return val, nil
		case []interface{}:
			if containsObject(val) {
				return nil, invalidType(val)
			}
			start = end
		}
	}
	return nil, &domain.ParseError{Kind: domain.ParseNoJSONFound}
}

func containsObject(items []interface{}) bool {
	for _, item := range items {
		if _, ok := item.(map[string]interface{}); ok {
			return true
		}
	}
	return false
}

// stripThinking drops a leading <think>...</think> block emitted by reasoning models.
func stripThinking(s string) string {
	start := strings.Index(s, "<think>")
	if start == -1 {
		return s
	}
	end := strings.Index(s[start:], "</think>")
	if end == -1 {
		return s
	}
	return s[:start] + s[start+end+len("</think>"):]
}

func decodeJSON(s string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// matchBracket returns the index of the bracket closing the one at open, or -1.
// Brackets inside JSON strings are ignored.
func matchBracket(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func attributesFromObject(obj map[string]interface{}) domain.Attributes {
	var attrs domain.Attributes
	for _, key := range domain.AttributeKeys {
		if v, ok := lookupKey(obj, key); ok {
			attrs.Set(key, normalizeValue(v))
		}
	}
	return attrs
}

// lookupKey tries an exact match first, then a case-insensitive one.
// Among several case-insensitive matches the lexically smallest key wins.
func lookupKey(obj map[string]interface{}, key string) (interface{}, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	var matches []string
	for k := range obj {
		if strings.EqualFold(k, key) {
			matches = append(matches, k)
		}
	}
	if len(matches) == 0 {
		return nil, false
	}
	sort.Strings(matches)
	return obj[matches[0]], true
}

func normalizeValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := normalizeValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(val); err != nil {
			return ""
		}
		return strings.TrimSpace(buf.String())
	}
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	}
	return "object"
}
