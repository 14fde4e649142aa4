package envconfig

import (
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     slog.Level(-8),
		"'1'":   slog.LevelDebug,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("ACCEL_DEBUG", k)
			if got := LogLevel(); got != v {
				t.Errorf("%s: erwartet %v, bekommen %v", k, v, got)
			}
		})
	}
}

func TestDriver(t *testing.T) {
	t.Setenv("ACCEL_DRIVER", " \"SIM\" ")
	if got := Driver(); got != "sim" {
		t.Errorf("erwartet sim, bekommen %q", got)
	}
}

func TestDevice(t *testing.T) {
	cases := map[string]int{
		"":    0,
		"3":   3,
		"-1":  0,
		"abc": 0,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("ACCEL_DEVICE", k)
			if got := Device(); got != v {
				t.Errorf("%s: erwartet %d, bekommen %d", k, v, got)
			}
		})
	}
}

func TestSimConfig(t *testing.T) {
	t.Setenv("ACCEL_SIM_DEVICES", "")
	t.Setenv("ACCEL_SIM_MEMORY", "")
	t.Setenv("ACCEL_SIM_MLOCK", "")

	if got := SimDevices(); got != 1 {
		t.Errorf("erwartet 1, bekommen %d", got)
	}
	if got := SimMemory(); got != 1<<30 {
		t.Errorf("erwartet 1 GiB, bekommen %d", got)
	}
	if SimMlock() {
		t.Error("erwartet mlock best effort")
	}

	t.Setenv("ACCEL_SIM_DEVICES", "4")
	t.Setenv("ACCEL_SIM_MEMORY", "1048576")
	t.Setenv("ACCEL_SIM_MLOCK", "1")

	if got := SimDevices(); got != 4 {
		t.Errorf("erwartet 4, bekommen %d", got)
	}
	if got := SimMemory(); got != 1<<20 {
		t.Errorf("erwartet 1 MiB, bekommen %d", got)
	}
	if !SimMlock() {
		t.Error("erwartet striktes mlock")
	}

	t.Setenv("ACCEL_SIM_DEVICES", "viele")
	if got := SimDevices(); got != 1 {
		t.Errorf("erwartet Default 1, bekommen %d", got)
	}
}

func TestValues(t *testing.T) {
	t.Setenv("ACCEL_DRIVER", "cuda")
	t.Setenv("ACCEL_DEVICE", "2")

	vals := Values()
	got := map[string]string{
		"ACCEL_DRIVER": vals["ACCEL_DRIVER"],
		"ACCEL_DEVICE": vals["ACCEL_DEVICE"],
	}
	want := map[string]string{
		"ACCEL_DRIVER": "cuda",
		"ACCEL_DEVICE": "2",
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Values (-erwartet +bekommen):\n%s", diff)
	}

	for name, ev := range AsMap() {
		if ev.Name != name || ev.Description == "" {
			t.Errorf("unvollstaendiger Eintrag %q: %+v", name, ev)
		}
	}
}
