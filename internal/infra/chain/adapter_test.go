package chain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRevertError(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"execution reverted: Not the author", "Not the author"},
		{"VM Exception while processing transaction: execution reverted: Job already taken", "Job already taken"},
		{"execution reverted", ""},
		{"insufficient balance", "insufficient balance"},
	}
	for _, tt := range tests {
		err := NewRevertError(tt.msg)
		assert.Equal(t, tt.want, err.Reason, tt.msg)
		assert.True(t, errors.Is(err, ErrReverted))
	}
	assert.Equal(t, "execution reverted: Not the author", NewRevertError("execution reverted: Not the author").Error())
}
