package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteCountSI(t *testing.T) {
	tests := []struct {
		name     string
		bytes    int
		expected string
	}{
		{name: "bytes", bytes: 500, expected: "500 B"},
		{name: "boundary below a kilobyte", bytes: 999, expected: "999 B"},
		{name: "kilobytes", bytes: 1500, expected: "1.5 kB"},
		{name: "megabytes", bytes: 2560000, expected: "2.6 MB"},
		{name: "gigabytes", bytes: 1000000000, expected: "1.0 GB"},
		{name: "zero", bytes: 0, expected: "0 B"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ByteCountSI(tc.bytes))
		})
	}
}
