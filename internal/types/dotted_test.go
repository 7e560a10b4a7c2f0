package types

import "testing"

func TestDottedRevnoStringAndParseRoundTrip(t *testing.T) {
	cases := []struct {
		revno DottedRevno
		want  string
	}{
		{DottedRevno{1}, "1"},
		{DottedRevno{1, 1, 1}, "1.1.1"},
		{DottedRevno{2, 3, 4, 1}, "2.3.4.1"},
	}
	for _, c := range cases {
		if got := c.revno.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
		parsed, err := ParseDottedRevno(c.want)
		if err != nil {
			t.Fatalf("ParseDottedRevno(%q): %v", c.want, err)
		}
		if !parsed.Equal(c.revno) {
			t.Errorf("ParseDottedRevno(%q) = %v, want %v", c.want, parsed, c.revno)
		}
	}
}

func TestParseDottedRevnoRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "1..2", "1.a.2", "."} {
		if _, err := ParseDottedRevno(s); err == nil {
			t.Errorf("ParseDottedRevno(%q) succeeded, want error", s)
		}
	}
}

func TestDottedRevnoBaseBranchIsMainline(t *testing.T) {
	mainline := DottedRevno{3}
	if !mainline.IsMainline() {
		t.Error("mainline.IsMainline() = false, want true")
	}
	if mainline.Branch() != MainlineBranch {
		t.Errorf("mainline.Branch() = %d, want %d", mainline.Branch(), MainlineBranch)
	}

	merged := DottedRevno{2, 1, 1}
	if merged.IsMainline() {
		t.Error("merged.IsMainline() = true, want false")
	}
	if merged.Base() != 2 {
		t.Errorf("merged.Base() = %d, want 2", merged.Base())
	}
	if merged.Branch() != 1 {
		t.Errorf("merged.Branch() = %d, want 1", merged.Branch())
	}
}
