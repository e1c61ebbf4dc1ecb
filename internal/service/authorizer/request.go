package authorizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Access values sent to the readers.
const (
	AccessGranted = "GRANTED"
	AccessDenied  = "DENIED"
)

// UnknownName is reported when the uid matches no token.
const UnknownName = "unknown"

// topicForbidden lists the characters MQTT forbids in a publish topic.
const topicForbidden = "+#\x00"

var (
	// ErrInvalidEncoding is returned for payloads that are not valid UTF-8.
	ErrInvalidEncoding = errors.New("payload is not valid UTF-8")
	// ErrMalformedRequest is returned for payloads that are not a JSON object.
	ErrMalformedRequest = errors.New("payload is not a JSON object")
	// ErrIncompleteRequest is returned when a required field is absent.
	ErrIncompleteRequest = errors.New("request is incomplete")
)

// Request is a decoded authorization request.
type Request struct {
	// Code is the alarm code typed on the reader.
	Code string
	// Hostname identifies the reader and its response topic.
	Hostname string
	// UID is the scanned token identifier.
	UID string
	// Action names the command to run on success.
	Action string
}

// Response is the decision published to the reader.
type Response struct {
	Access string `json:"access"`
	UID    string `json:"uid"`
	Name   string `json:"name"`
}

// wireRequest keeps absent fields distinguishable from empty strings.
type wireRequest struct {
	Code     *string `json:"code"`
	Hostname *string `json:"hostname"`
	UID      *string `json:"uid"`
	Action   *string `json:"action"`
}

// DecodeRequest parses an authorization payload.
func DecodeRequest(payload []byte) (Request, error) {
	if !utf8.Valid(payload) {
		return Request{}, ErrInvalidEncoding
	}

	var wire wireRequest
	if err := json.Unmarshal(payload, &wire); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Request{}, fmt.Errorf("%w: %s is not a string", ErrIncompleteRequest, typeErr.Field)
		}

		return Request{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	fields := []struct {
		key   string
		value *string
	}{
		{key: "code", value: wire.Code},
		{key: "hostname", value: wire.Hostname},
		{key: "uid", value: wire.UID},
		{key: "action", value: wire.Action},
	}

	for _, field := range fields {
		if field.value == nil {
			return Request{}, fmt.Errorf("%w: missing %s", ErrIncompleteRequest, field.key)
		}
	}

	// The hostname becomes a level of the response topic.
	if strings.ContainsAny(*wire.Hostname, topicForbidden) {
		return Request{}, fmt.Errorf("%w: hostname %q cannot be used in a topic", ErrMalformedRequest, *wire.Hostname)
	}

	return Request{
		Code:     *wire.Code,
		Hostname: *wire.Hostname,
		UID:      *wire.UID,
		Action:   *wire.Action,
	}, nil
}
