package led

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   string
		want Color
	}{
		{"ff0000", Red},
		{"#00ff00", Green},
		{"0000FF", Blue},
		{" #ffffff ", White},
		{"102030", Color{Red: 0x10, Green: 0x20, Blue: 0x30}},
	}
	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseHex_Invalid(t *testing.T) {
	for _, in := range []string{"", "zz00ff", "#fff", "1234567", "-12345", "0x1234"} {
		c, err := ParseHex(in)
		assert.ErrorIs(t, err, ErrInvalidHex, in)
		assert.True(t, c.IsEmpty(), in)
	}
}

func TestHexRoundTrip(t *testing.T) {
	for r := 0; r < 256; r += 15 {
		for g := 0; g < 256; g += 17 {
			for b := 0; b < 256; b += 51 {
				c := Color{Red: byte(r), Green: byte(g), Blue: byte(b)}
				got, err := ParseHex(c.Hex())
				assert.NoError(t, err)
				assert.Equal(t, c, got)
			}
		}
	}
}

func TestScale(t *testing.T) {
	assert.Equal(t, White, White.Scale(255))
	assert.Equal(t, Off, White.Scale(0))
	assert.Equal(t, Color{Red: 128, Green: 128, Blue: 128}, White.Scale(128))
	assert.Equal(t, "#ff0000", Red.String())
}

func TestColor_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		C Color `json:"c"`
	}{C: Color{Red: 0x12, Green: 0xab, Blue: 0x05}})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"c":"#12ab05"}`, string(data))

	var back struct {
		C Color `json:"c"`
	}
	assert.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Color{Red: 0x12, Green: 0xab, Blue: 0x05}, back.C)

	assert.Error(t, json.Unmarshal([]byte(`{"c":"nope"}`), &back))
}
