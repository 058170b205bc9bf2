package store

import (
	"bytes"
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"

	sqlite "modernc.org/sqlite"
)

// vecCompatErr is reported by Open; without the function every similarity
// search would fail.
var vecCompatErr error

func init() {
	vecCompatErr = registerVecCompat()
}

// registerVecCompat installs the cosine distance function used by
// SimilaritySearch so ranking happens inside SQLite.
func registerVecCompat() error {
	// Deterministic: same input blobs produce the same distance.
	if err := sqlite.RegisterDeterministicScalarFunction("vector_distance_cos", 2, vecDistanceCos); err != nil {
		return fmt.Errorf("register vector_distance_cos: %w", err)
	}
	return nil
}

// vector_distance_cos implementation
func vecDistanceCos(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vector_distance_cos expects 2 arguments")
	}
	a, err := decodeFloat32(args[0])
	if err != nil {
		return nil, err
	}
	b, err := decodeFloat32(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) == 0 || len(b) == 0 {
		return float64(1), nil
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vector_distance_cos: dimension mismatch %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		af := float64(a[i])
		bf := float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return float64(1), nil
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return float64(1 - cos), nil
}

// decodeFloat32 converts supported driver.Value types into a float32 slice.
func decodeFloat32(v driver.Value) ([]float32, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []byte:
		if len(x)%4 != 0 {
			return nil, fmt.Errorf("vector_distance_cos: blob length %d not multiple of 4", len(x))
		}
		out := make([]float32, len(x)/4)
		for i := 0; i < len(out); i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(x[i*4:]))
		}
		return out, nil
	case string:
		return decodeFloat32([]byte(x))
	default:
		return nil, fmt.Errorf("vector_distance_cos: unsupported type %T", v)
	}
}

// encodeFloat32 encodes a vector as a little-endian blob.
func encodeFloat32(vec []float32) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil
	}
	return buf.Bytes()
}
