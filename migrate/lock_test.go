package migrate

import "testing"

func TestLockKey(t *testing.T) {
	a, b := lockKey("pgmigrate"), lockKey("pgmigrate")
	if a != b {
		t.Fatalf("key not stable: %d vs %d", a, b)
	}
	if a < 0 {
		t.Fatalf("key must be non-negative, got %d", a)
	}
	if lockKey("other") == a {
		t.Fatal("different names should give different keys")
	}
}
