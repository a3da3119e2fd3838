package statequeue

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLivenessError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *LivenessError
		want string
	}{
		{
			name: "slot",
			err:  &LivenessError{Generation: 7, Acknowledged: 3, Waited: time.Second},
			want: "statequeue: reader stopped acknowledging: waited 1s for free slot of generation 7 (acknowledged 3)",
		},
		{
			name: "sync",
			err:  &LivenessError{Generation: 4, Acknowledged: 2, Waited: 2 * time.Millisecond, Sync: true},
			want: "statequeue: reader stopped acknowledging: waited 2ms for acknowledgement of generation 4 (acknowledged 2)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLivenessError_Unwrap(t *testing.T) {
	var err error = fmt.Errorf("remove source: %w", &LivenessError{Generation: 1})
	assert.ErrorIs(t, err, ErrLiveness)
	var target *LivenessError
	if assert.True(t, errors.As(err, &target)) {
		assert.Equal(t, uint64(1), target.Generation)
	}
}
