// config.go - Haupt-Konfigurationsfunktionen fuer accel
//
// Dieses Modul enthaelt:
// - LogLevel: Gibt Log-Level zurueck (ACCEL_DEBUG)
// - Driver: Gibt den erzwungenen Treiber zurueck (ACCEL_DRIVER)
// - Device: Gibt das Standard-Geraet zurueck (ACCEL_DEVICE)
// - Var: Liest eine Environment-Variable
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Simulator- und GPU-Variablen
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via ACCEL_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("ACCEL_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Driver gibt den Namen des erzwungenen Treibers zurueck
// Konfigurierbar via ACCEL_DRIVER (z.B. "cuda" oder "sim")
// Leer = automatische Auswahl
func Driver() string {
	return strings.ToLower(Var("ACCEL_DRIVER"))
}

// Device gibt die Ordinalzahl des Standard-Geraets zurueck
// Konfigurierbar via ACCEL_DEVICE
// Default: 0
func Device() int {
	if s := Var("ACCEL_DEVICE"); s != "" {
		n, err := strconv.Atoi(s)
		if err == nil && n >= 0 {
			return n
		}
		slog.Warn("invalid device ordinal, using default", "value", s, "default", 0)
	}

	return 0
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
