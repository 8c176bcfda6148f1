package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pondapp/chat-server/internal/chat"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError(msg string) *ApiError {
	if msg == "" {
		msg = lower(http.StatusText(http.StatusBadRequest))
	}

	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    msg,
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

// chatError maps a chat sentinel onto an HTTP error.
func chatError(err error) *ApiError {
	switch {
	case errors.Is(err, chat.ErrRoomNotFound),
		errors.Is(err, chat.ErrListingNotFound),
		errors.Is(err, chat.ErrUserNotFound):
		return NewNotFoundError()
	case errors.Is(err, chat.ErrNotParticipant):
		return NewForbiddenError()
	case errors.Is(err, chat.ErrSelfConversation),
		errors.Is(err, chat.ErrEmptyContent):
		return NewBadRequestError(err.Error())
	default:
		return NewInternalServerError(err)
	}
}
