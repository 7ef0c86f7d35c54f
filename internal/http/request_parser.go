// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data.
// Bodies may be JSON objects or form-encoded.
package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cariya/internal/core"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 64 << 10

// RequestBodyParser handles different content types for request body parsing.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("%w: request body too large", core.ErrInvalidInput)
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: malformed JSON body", core.ErrInvalidFormat)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	if p.err != nil {
		p.err = fmt.Errorf("%w: malformed form body", core.ErrInvalidFormat)
	}
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Int returns the integer at key. ok is false when the key is absent.
func (p *RequestBodyParser) Int(key string) (n int, ok bool, err error) {
	raw := p.Get(key)
	if raw == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s must be a whole number", core.ErrInvalidFormat, key)
	}
	return n, true, nil
}

// Money returns the amount at key, which is required.
func (p *RequestBodyParser) Money(key string) (core.Money, error) {
	raw := p.Get(key)
	if raw == "" {
		return core.Money{}, fmt.Errorf("%w: %s is required", core.ErrInvalidInput, key)
	}
	return core.ParseMoney(raw)
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseMonthQuery reads an optional positive month position from the query.
func parseMonthQuery(query url.Values) (*int, error) {
	v := strings.TrimSpace(query.Get("month"))
	if v == "" {
		return nil, nil
	}
	m, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%w: month must be a whole number", core.ErrInvalidFormat)
	}
	return &m, nil
}

// queryFlag reports whether a boolean query parameter is set.
func queryFlag(query url.Values, key string) bool {
	switch strings.ToLower(strings.TrimSpace(query.Get(key))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
