package format

import "testing"

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1 KB"},
		{1500, "1.5 KB"},
		{4000, "4 KB"},
		{12_345_678, "12 MB"},
		{2_000_000_000, "2 GB"},
		{3_300_000_000_000, "3.3 TB"},
	}

	for _, tt := range tests {
		if got := HumanBytes(tt.in); got != tt.want {
			t.Errorf("HumanBytes(%d) = %q, erwartet %q", tt.in, got, tt.want)
		}
	}
}

func TestHumanBytes2(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{KibiByte, "1.0 KiB"},
		{3 * MebiByte / 2, "1.5 MiB"},
		{GibiByte, "1.0 GiB"},
	}

	for _, tt := range tests {
		if got := HumanBytes2(tt.in); got != tt.want {
			t.Errorf("HumanBytes2(%d) = %q, erwartet %q", tt.in, got, tt.want)
		}
	}
}
