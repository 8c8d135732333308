package redis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Keys(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{"no prefix", "", "execution:exec-1"},
		{"prefix", "mediaflow", "mediaflow:execution:exec-1"},
		{"prefix with separator", "mediaflow:", "mediaflow:execution:exec-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, newKeys(tt.prefix).executionKey("exec-1"))
		})
	}
}
