package service

import (
	"errors"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/protocol"
)

// ErrorFrame maps an operation error onto the client-visible error frame.
// Forbidden and not-found share one code and text.
func ErrorFrame(err error, ref string) *protocol.ErrorMessage {
	switch {
	case errors.Is(err, domain.ErrNotActive):
		return protocol.NewErrorMessage(protocol.ErrCodeNotActive, domain.ErrNotActive.Error(), ref)
	case errors.Is(err, domain.ErrUnauthenticated):
		return protocol.NewErrorMessage(protocol.ErrCodeUnauthorized, "authentication failed", ref)
	case errors.Is(err, domain.ErrAccessDenied):
		return protocol.NewErrorMessage(protocol.ErrCodeAccessDenied, domain.ErrAccessDenied.Error(), ref)
	case errors.Is(err, domain.ErrValidationFailed):
		return protocol.NewErrorMessage(protocol.ErrCodeValidationFailed, err.Error(), ref)
	case errors.Is(err, domain.ErrPersistence):
		return protocol.NewErrorMessage(protocol.ErrCodeInternalError, "failed to send message", ref)
	case errors.Is(err, protocol.ErrMalformedFrame), errors.Is(err, protocol.ErrUnknownType), errors.Is(err, protocol.ErrMissingField):
		return protocol.NewErrorMessage(protocol.ErrCodeBadRequest, err.Error(), ref)
	default:
		return protocol.NewErrorMessage(protocol.ErrCodeInternalError, "internal error", ref)
	}
}
