package embeddings

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKnownBuffer(t *testing.T) {
	// 1.0 and -2.5 as little-endian float32.
	raw := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x20, 0xc0}
	vector, err := Decode(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, []float32{1.0, -2.5}, vector)
}

func TestEncodeDecode(t *testing.T) {
	vector := []float32{0, 1.5, -3.25, 1e-9, 123456.78}
	decoded, err := Decode(Encode(vector))
	require.NoError(t, err)
	assert.Equal(t, vector, decoded)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	_, err := Decode("not base64!!!")
	assert.Error(t, err)

	// 3 bytes is not a whole number of float32s.
	_, err = Decode(base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
	assert.Error(t, err)
}
