package goble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDecodeHeartRate verifies Heart Rate Measurement parsing across the
// flag-selected uint8 and uint16 formats
func TestDecodeHeartRate(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want float64
		ok   bool
	}{
		{
			name: "uint8 format",
			data: []byte{0x00, 72},
			want: 72,
			ok:   true,
		},
		{
			name: "uint8 format with extra fields",
			data: []byte{0x16, 65, 0x34, 0x02},
			want: 65,
			ok:   true,
		},
		{
			name: "uint16 format little endian",
			data: []byte{0x01, 0x2C, 0x01},
			want: 300,
			ok:   true,
		},
		{
			name: "empty value",
			data: nil,
			ok:   false,
		},
		{
			name: "flags only",
			data: []byte{0x00},
			ok:   false,
		},
		{
			name: "uint16 format truncated",
			data: []byte{0x01, 0x48},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeHeartRate(tt.data)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
