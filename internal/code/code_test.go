package code

import (
	"regexp"
	"strings"
	"testing"
)

func TestGenerate_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^[ABCDEFGHJKMNPQRSTUVWXYZ23456789]{6}$`)

	for i := 0; i < 100; i++ {
		c, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error: %v", err)
		}
		if !pattern.MatchString(c) {
			t.Errorf("Generate() = %q, doesn't match expected pattern", c)
		}
	}
}

func TestGenerate_NoAmbiguousChars(t *testing.T) {
	for i := 0; i < 10000; i++ {
		c, err := Generate()
		if err != nil {
			t.Fatal(err)
		}
		if strings.ContainsAny(c, "0OIL1") {
			t.Fatalf("code %q contains an ambiguous character", c)
		}
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	dupes := 0
	for i := 0; i < 1000; i++ {
		c, err := Generate()
		if err != nil {
			t.Fatal(err)
		}
		if seen[c] {
			dupes++
		}
		seen[c] = true
	}
	// 31^6 combinations; 1000 samples should essentially never collide
	if dupes > 2 {
		t.Errorf("too many duplicate codes: %d out of 1000", dupes)
	}
}

func TestIsWellFormed(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"valid upper", "ABCDEF", true},
		{"valid lower is normalized", "abcdef", true},
		{"valid with digits", "AB23CD", true},
		{"too short", "ABCDE", false},
		{"too long", "ABCDEFG", false},
		{"contains O", "ABCDEO", false},
		{"contains zero", "ABCDE0", false},
		{"contains I", "IBCDEF", false},
		{"contains L", "LBCDEF", false},
		{"contains one", "1BCDEF", false},
		{"empty", "", false},
		{"surrounding space trimmed", " AB23CD ", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsWellFormed(tc.in); got != tc.want {
				t.Fatalf("IsWellFormed(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(" ab23cd "); got != "AB23CD" {
		t.Fatalf("Normalize = %q, want AB23CD", got)
	}
}
