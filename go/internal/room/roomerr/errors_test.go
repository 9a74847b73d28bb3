package roomerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		kind error
		want string
	}{
		{"validation", Validation("no winner to adjudicate"), ErrValidation, "validation"},
		{"conflict", Conflict("already won"), ErrConflict, "conflict"},
		{"transport", Transport(cause, "get room %s", "ABCD"), ErrTransport, "transport"},
		{"fatal", Fatal(cause, "room deleted"), ErrFatal, "fatal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestCauseIsReachable(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transport(cause, "get room")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "transport error: get room: connection refused", err.Error())

	var re *Error
	if assert.ErrorAs(t, err, &re) {
		assert.Equal(t, "get room", re.Message())
	}
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, "internal", Kind(errors.New("boom")))
	assert.Equal(t, "", Kind(nil))
}
