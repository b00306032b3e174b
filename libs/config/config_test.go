package config

import "testing"

func TestStrings(t *testing.T) {
	t.Setenv("TEST_ORIGINS", " https://a.example.com, ,https://b.example.com ")
	got := Strings("TEST_ORIGINS", nil)
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Fatalf("unexpected list: %v", got)
	}
}

func TestStringsFallback(t *testing.T) {
	got := Strings("TEST_UNSET_LIST", []string{"x"})
	if len(got) != 1 || got[0] != "x" {
		t.Fatalf("unexpected fallback: %v", got)
	}
	t.Setenv("TEST_BLANK_LIST", " , ,")
	got = Strings("TEST_BLANK_LIST", []string{"x"})
	if len(got) != 1 || got[0] != "x" {
		t.Fatalf("blank list should fall back, got %v", got)
	}
}

func TestIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	if got := Int("TEST_INT", 7); got != 7 {
		t.Fatalf("Int = %d, want fallback 7", got)
	}
}

func TestPortRejectsOutOfRange(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}
