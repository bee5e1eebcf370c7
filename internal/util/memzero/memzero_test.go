package memzero_test

import (
	"testing"

	"wcsign/internal/domain"
	"wcsign/internal/util/memzero"
)

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	memzero.Zero(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("b[%d] = %d", i, v)
		}
	}
	memzero.Zero(nil)
}

func TestKey(t *testing.T) {
	k := domain.SymmetricKey{1, 2, 3}
	memzero.Key(&k)
	if k != (domain.SymmetricKey{}) {
		t.Fatalf("key not cleared: %x", k)
	}
}
