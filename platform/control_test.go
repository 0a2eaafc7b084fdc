package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStreamEnd(t *testing.T) {
	for c := ControlCode(0); c <= 6; c++ {
		want := c == 3 || c == 4
		assert.Equal(t, want, DefaultStreamEnd(c), "code %d", c)
	}
}

func TestEndCodesEmptyMatchesNothing(t *testing.T) {
	p := EndCodes()
	assert.False(t, p(ControlStreamEnded))
	assert.False(t, p(ControlUnknown))
}

func TestParseControlCodes(t *testing.T) {
	tests := []struct {
		in      string
		want    []ControlCode
		wantErr bool
	}{
		{in: "3 4", want: []ControlCode{3, 4}},
		{in: "3,4", want: []ControlCode{3, 4}},
		{in: "stream_ended, 1", want: []ControlCode{ControlStreamEnded, ControlStreamPaused}},
		{in: "", want: []ControlCode{}},
		{in: "-1", wantErr: true},
		{in: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseControlCodes(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestControlCodeString(t *testing.T) {
	assert.Equal(t, "stream_suspended", ControlStreamSuspended.String())
	assert.Equal(t, "code_9", ControlCode(9).String())
	assert.Equal(t, "comment", EventComment.String())
}
