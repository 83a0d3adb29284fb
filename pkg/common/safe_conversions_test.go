package common

import (
	"math"
	"testing"
)

func TestSafeIntToUint32(t *testing.T) {
	testCases := []struct {
		name     string
		value    int
		expected uint32
		hasError bool
	}{
		{"zero", 0, 0, false},
		{"normal value", 44100, 44100, false},
		{"max uint32", math.MaxUint32, math.MaxUint32, false},
		{"negative", -1, 0, true},
		{"too large", math.MaxUint32 + 1, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := SafeIntToUint32(tc.value)

			if tc.hasError {
				if err == nil {
					t.Errorf("SafeIntToUint32(%d) should fail", tc.value)
				}
			} else {
				if err != nil {
					t.Errorf("SafeIntToUint32(%d) failed: %v", tc.value, err)
				}
				if result != tc.expected {
					t.Errorf("SafeIntToUint32(%d) = %d, want %d", tc.value, result, tc.expected)
				}
			}
		})
	}
}

func TestSafeInt64ToUint32(t *testing.T) {
	testCases := []struct {
		name     string
		value    int64
		expected uint32
		hasError bool
	}{
		{"zero", 0, 0, false},
		{"normal value", 1 << 20, 1 << 20, false},
		{"max uint32", math.MaxUint32, math.MaxUint32, false},
		{"negative", -5, 0, true},
		{"too large", math.MaxUint32 + 1, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := SafeInt64ToUint32(tc.value)

			if tc.hasError {
				if err == nil {
					t.Errorf("SafeInt64ToUint32(%d) should fail", tc.value)
				}
			} else {
				if err != nil {
					t.Errorf("SafeInt64ToUint32(%d) failed: %v", tc.value, err)
				}
				if result != tc.expected {
					t.Errorf("SafeInt64ToUint32(%d) = %d, want %d", tc.value, result, tc.expected)
				}
			}
		})
	}
}

func TestSafeUint32ToInt64(t *testing.T) {
	if got := SafeUint32ToInt64(math.MaxUint32); got != int64(math.MaxUint32) {
		t.Errorf("SafeUint32ToInt64(max) = %d, want %d", got, int64(math.MaxUint32))
	}
	if got := SafeUint32ToInt64(0); got != 0 {
		t.Errorf("SafeUint32ToInt64(0) = %d, want 0", got)
	}
}
