package service

import (
	"errors"

	"connectrpc.com/connect"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
)

// ErrRateLimited is returned when a participant signals too often.
var ErrRateLimited = errors.New("too many signal attempts")

// ErrorKindHeader carries the room error kind on failed responses.
const ErrorKindHeader = "Buzz-Error-Kind"

// toConnectError maps room errors onto connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}

	code := connect.CodeInternal
	switch {
	case errors.Is(err, ErrRateLimited):
		code = connect.CodeResourceExhausted
	case errors.Is(err, roomerr.ErrValidation):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, roomerr.ErrConflict):
		code = connect.CodeAborted
	case errors.Is(err, roomerr.ErrTransport):
		code = connect.CodeUnavailable
	case errors.Is(err, roomerr.ErrFatal):
		code = connect.CodeNotFound
	}

	cerr := connect.NewError(code, err)
	cerr.Meta().Set(ErrorKindHeader, roomerr.Kind(err))
	return cerr
}
