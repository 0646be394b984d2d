package version

import "testing"

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"2.10.0", "2.9.0", 1},
		{"2.9.0", "2.10.0", -1},
		{"2.1.0", "2.0.5", 1},
		{"2.0.0", "2.1.0", -1},
		{"1.0.0", "1.0.0", 0},
		{"v1.2.3", "1.2.3", 0},
		{"1.02", "1.2", 0},
		{"1.0", "1.0.0", -1},
		{"1.0.0-rc1", "1.0.0", 1},
		{"1.0.0-rc1", "1.0.0-rc2", -1},
		{"1.0.0-1", "1.0.0-alpha", -1},
		{"0.6.1+g3f2a", "0.6.1+g3f2b", -1},
		{"", "0.0.1", -1},
		{"", "", 0},
		{"123456789012345678901234567890", "9", 1},
	}
	for _, tc := range cases {
		if got := Compare(tc.a, tc.b); got != tc.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
		if got := Compare(tc.b, tc.a); got != -tc.want {
			t.Errorf("Compare(%q, %q) = %d, want %d (antisymmetry)", tc.b, tc.a, got, -tc.want)
		}
	}
}

func TestAtLeast(t *testing.T) {
	if !AtLeast("0.6.0", "0.6.0") {
		t.Fatal("equal versions should satisfy AtLeast")
	}
	if AtLeast("0.5.9", "0.6.0") {
		t.Fatal("older version should not satisfy AtLeast")
	}
}

func TestParseEmptyIsZero(t *testing.T) {
	if !Parse("  ").IsZero() {
		t.Fatal("blank version should be zero")
	}
	if Parse("1").IsZero() {
		t.Fatal("non-blank version should not be zero")
	}
	if Parse(" v2.0 ").String() != "v2.0" {
		t.Fatalf("unexpected raw: %q", Parse(" v2.0 ").String())
	}
}
