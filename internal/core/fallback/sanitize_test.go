package fallback

import "testing"

func TestSanitizeTextMasksLongDigitRuns(t *testing.T) {
	cases := map[string]string{
		"IBAN DE12345678901234 end": "IBAN DE12**********34 end",
		"short 1234567 stays":       "short 1234567 stays",
		"exact 12345678":            "exact 12****78",
		"a 11112222 b 333344445555": "a 11****22 b 33********55",
	}
	for in, want := range cases {
		if got := SanitizeText(in); got != want {
			t.Fatalf("SanitizeText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHashTextIsStable(t *testing.T) {
	if HashText("abc") != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected sha256")
	}
}
