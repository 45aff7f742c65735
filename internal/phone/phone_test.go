package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"leading eight", "89991234567", "+79991234567"},
		{"bare seven", "79991234567", "+79991234567"},
		{"already canonical", "+79991234567", "+79991234567"},
		{"formatted", "+7 (999) 123-45-67", "+79991234567"},
		{"formatted eight", "8-999-123-45-67", "+79991234567"},
		{"ten digits", "9991234567", "+79991234567"},
		{"inner plus dropped", "999+1234567", "+79991234567"},
		{"empty", "", "+7"},
		{"letters only", "abc", "+7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"", "+", "8", "7", "+7", "89991234567", "79991234567", "+79991234567",
		"+8 999 000", "++79991234567", "tel: 8 (999) 123 45 67", "0000", "+1 555 0100",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
		assert.Equal(t, byte('+'), once[0], "input %q", in)
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("89991234567", "+7 999 123-45-67"))
	assert.True(t, Equal("79991234567", "+79991234567"))
	assert.False(t, Equal("89991234567", "89991234568"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("+79991234567"))
	assert.True(t, Valid("89991234567"))
	assert.True(t, Valid("79991234567"))
	assert.True(t, Valid("+7 (999) 123-45-67"))
	assert.True(t, Valid("9991234567"))

	assert.False(t, Valid(""))
	assert.False(t, Valid("12345"))
	assert.False(t, Valid("+19991234567"))
	assert.False(t, Valid("899912345678"))
}
