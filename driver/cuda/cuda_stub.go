// MODUL: cuda_stub
// ZWECK: Platzhalter wenn die CUDA-Anbindung nicht kompiliert wird
// INPUT: Keine
// OUTPUT: Available = false, kein registrierter Treiber
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: Keine
// HINWEISE: Wird kompiliert wenn Build-Tag "cuda" NICHT gesetzt

//go:build !cuda

// Package cuda binds the CUDA driver API when built with -tags cuda. Without
// the tag the package registers nothing and driver.Default falls back to the
// simulated driver.
package cuda

// Available reports whether the CUDA binding was compiled in.
const Available = false
