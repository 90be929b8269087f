package protocol

import "errors"

var (
	ErrNotObject      = errors.New("protocol: frame is not a JSON object")
	ErrMissingField   = errors.New("protocol: missing envelope field")
	ErrBadTimestamp   = errors.New("protocol: unparseable timestamp")
	ErrUnknownType    = errors.New("protocol: unknown message type")
	ErrMissingPayload = errors.New("protocol: missing payload")
	ErrBadPayload     = errors.New("protocol: malformed payload")
)
