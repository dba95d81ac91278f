// Package quantity parses and formats Kubernetes-style resource
// quantity strings into the engine's canonical units: CPU in cores,
// memory in bytes.
package quantity

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidQuantity reports a malformed resource string. It aborts only
// the affected parse; callers decide whether to skip or abort.
var ErrInvalidQuantity = errors.New("invalid quantity")

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
	tib = 1024 * gib
)

// memorySuffixes maps unit suffixes to byte multipliers. Binary suffixes
// (Ki/Mi/Gi/Ti) are base 1024, decimal suffixes (K/M/G/T) are base 1000.
// 1Gi = 1073741824 bytes, 1G = 1000000000 bytes; the two are never the same.
var memorySuffixes = []struct {
	suffix     string
	multiplier float64
}{
	{"Ki", kib},
	{"Mi", mib},
	{"Gi", gib},
	{"Ti", tib},
	{"K", 1e3},
	{"M", 1e6},
	{"G", 1e9},
	{"T", 1e12},
}

// ParseCPU converts a CPU quantity string to cores. "250m" is 0.25,
// "0.5" and "2" are taken as cores directly.
func ParseCPU(value string) (float64, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("%w: empty cpu value", ErrInvalidQuantity)
	}

	millis := false
	if strings.HasSuffix(s, "m") {
		millis = true
		s = strings.TrimSuffix(s, "m")
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: cpu %q", ErrInvalidQuantity, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative cpu %q", ErrInvalidQuantity, value)
	}

	if millis {
		return n / 1000, nil
	}
	return n, nil
}

// ParseMemory converts a memory quantity string to bytes. A bare number
// is a raw byte count.
func ParseMemory(value string) (float64, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("%w: empty memory value", ErrInvalidQuantity)
	}

	multiplier := 1.0
	for _, m := range memorySuffixes {
		if strings.HasSuffix(s, m.suffix) {
			multiplier = m.multiplier
			s = strings.TrimSuffix(s, m.suffix)
			break
		}
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: memory %q", ErrInvalidQuantity, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative memory %q", ErrInvalidQuantity, value)
	}

	return n * multiplier, nil
}

// FormatCPU renders cores as a canonical quantity string for patch
// emission: millicores below one core, plain cores otherwise.
func FormatCPU(cores float64) string {
	if cores < 1 {
		return trimFloat(cores*1000) + "m"
	}
	return trimFloat(cores)
}

// FormatMemory renders a byte count using the largest binary suffix that
// divides it exactly, falling back to a raw byte count. The value is
// rounded to whole bytes first.
func FormatMemory(bytes float64) string {
	b := int64(math.Round(bytes))
	if b <= 0 {
		return "0"
	}

	switch {
	case b%gib == 0:
		return strconv.FormatInt(b/gib, 10) + "Gi"
	case b >= mib && b%mib == 0:
		return strconv.FormatInt(b/mib, 10) + "Mi"
	case b >= kib && b%kib == 0:
		return strconv.FormatInt(b/kib, 10) + "Ki"
	default:
		return strconv.FormatInt(b, 10)
	}
}

// trimFloat renders the shortest decimal representation that parses back
// to the same float64, so format/parse round trips are stable.
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
