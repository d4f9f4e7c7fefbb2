package metering

import (
	"errors"

	"github.com/natidev-sh/natiweb/internal/upstream"
)

var (
	ErrInvalidRequest  = errors.New("invalid_metering_request")
	ErrInvalidResponse = errors.New("invalid_metering_response")
)

type UpstreamError = upstream.Error
