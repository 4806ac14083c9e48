package mocks

import (
	"github.com/quizbattle/quizbattle-go/internal/dependencies/random"
)

// MockRandom is a deterministic Random for testing
type MockRandom struct {
	// IntnValues is returned by successive Intn calls, cycling
	IntnValues []int
	// StringValues is returned by successive String calls, cycling
	StringValues []string

	intnIdx   int
	stringIdx int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// Intn returns the next configured value modulo n
func (r *MockRandom) Intn(n int) int {
	if n <= 0 || len(r.IntnValues) == 0 {
		return 0
	}
	v := r.IntnValues[r.intnIdx%len(r.IntnValues)]
	r.intnIdx++
	return v % n
}

// String returns the next configured string, truncated or padded to length
func (r *MockRandom) String(length int, alphabet string) string {
	if len(r.StringValues) == 0 {
		if len(alphabet) == 0 {
			return ""
		}
		result := make([]byte, length)
		for i := range result {
			result[i] = alphabet[0]
		}
		return string(result)
	}
	v := r.StringValues[r.stringIdx%len(r.StringValues)]
	r.stringIdx++
	return v
}
