package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("DECKGEN_TEST_HOST", "redis.internal")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "env var set",
			in:   "host: ${DECKGEN_TEST_HOST}",
			want: "host: redis.internal",
		},
		{
			name: "env var set overrides default",
			in:   "host: ${DECKGEN_TEST_HOST:localhost}",
			want: "host: redis.internal",
		},
		{
			name: "default used when unset",
			in:   "port: ${DECKGEN_TEST_PORT:6379}",
			want: "port: 6379",
		},
		{
			name: "empty default",
			in:   "password: ${DECKGEN_TEST_PASSWORD:}",
			want: "password: ",
		},
		{
			name: "unset without default kept verbatim",
			in:   "key: ${DECKGEN_TEST_MISSING}",
			want: "key: ${DECKGEN_TEST_MISSING}",
		},
		{
			name: "multiple placeholders",
			in:   "addr: ${DECKGEN_TEST_HOST}:${DECKGEN_TEST_PORT:6379}",
			want: "addr: redis.internal:6379",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnv(tt.in))
		})
	}
}
