package embeddings

import (
	"encoding/base64"
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// Decode unpacks a base64-encoded buffer of little-endian float32 values,
// the wire form embedding vectors arrive in from the host's input binding.
func Decode(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "embeddings: decoding base64 vector")
	}
	if len(raw)%4 != 0 {
		return nil, errors.Newf("embeddings: vector buffer of %d bytes is not a multiple of 4", len(raw))
	}
	vector := make([]float32, len(raw)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

// Encode packs a vector into the base64 little-endian float32 wire form.
func Encode(vector []float32) string {
	raw := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(raw)
}
