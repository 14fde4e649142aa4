package memory

import "testing"

func TestParseKind(t *testing.T) {
	for k := KindHost; k <= KindArray; k++ {
		got, err := ParseKind(k.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != k {
			t.Errorf("erwartet %s, bekommen %s", k, got)
		}
	}

	if _, err := ParseKind("pinned"); err == nil {
		t.Error("erwartet Fehler fuer unbekannte Art")
	}

	if s := Kind(42).String(); s != "unknown" {
		t.Errorf("erwartet unknown, bekommen %s", s)
	}
}
