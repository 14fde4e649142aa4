// config_features.go - Simulator- und GPU-Konfiguration
//
// Dieses Modul enthaelt:
// - Einstellungen des simulierten Treibers
// - GPU-bezogene Environment-Variablen
package envconfig

// =============================================================================
// Simulator-Einstellungen
// =============================================================================

var (
	// SimDevices setzt die Anzahl simulierter Geraete
	// Konfigurierbar via ACCEL_SIM_DEVICES
	SimDevices = Uint("ACCEL_SIM_DEVICES", 1)

	// SimMemory setzt die Speicherkapazitaet pro simuliertem Geraet (in Bytes)
	// Konfigurierbar via ACCEL_SIM_MEMORY
	SimMemory = Uint64("ACCEL_SIM_MEMORY", 1<<30)

	// SimMlock erzwingt mlock fuer page-locked Speicher im Simulator.
	// Ohne diese Option ist mlock best effort.
	SimMlock = Bool("ACCEL_SIM_MLOCK")
)

// =============================================================================
// GPU-Sichtbarkeits-Variablen
// =============================================================================

var (
	// CudaVisibleDevices steuert sichtbare NVIDIA-Geraete
	CudaVisibleDevices = String("CUDA_VISIBLE_DEVICES")
)
