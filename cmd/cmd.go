// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs, versionHandler
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/accel/driver/cuda"
	"github.com/ollama/accel/envconfig"
	"github.com/ollama/accel/logutil"
	"github.com/ollama/accel/version"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// versionHandler - Gibt Version und eingebaute Treiber aus
func versionHandler(cmd *cobra.Command, _ []string) {
	cmd.Printf("accel version is %s\n", version.Version)
	if cuda.Available {
		cmd.Println("cuda driver: built in")
	} else {
		cmd.Println("cuda driver: not built in (build with -tags cuda)")
	}
}

// setupLogging - Setzt den Standard-Logger nach ACCEL_DEBUG
func setupLogging(cmd *cobra.Command, _ []string) {
	slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:              "accel",
		Short:            "Accelerator context and memory toolkit",
		SilenceUsage:     true,
		SilenceErrors:    true,
		PersistentPreRun: setupLogging,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	devicesCmd := newDevicesCmd()
	roundTripCmd := newRoundTripCmd()
	arrayCmd := newArrayCmd()
	benchCmd := newBenchCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["ACCEL_DEBUG"], envVars["ACCEL_DRIVER"], envVars["ACCEL_DEVICE"]}

	for _, cmd := range []*cobra.Command{
		devicesCmd,
		roundTripCmd,
		arrayCmd,
		benchCmd,
	} {
		switch cmd {
		case devicesCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["ACCEL_DEBUG"],
				envVars["ACCEL_DRIVER"],
				envVars["ACCEL_SIM_DEVICES"],
				envVars["ACCEL_SIM_MEMORY"],
				envVars["CUDA_VISIBLE_DEVICES"],
			})
		case benchCmd:
			appendEnvDocs(cmd, append(envs, envVars["ACCEL_SIM_MLOCK"]))
		default:
			appendEnvDocs(cmd, envs)
		}
	}

	rootCmd.AddCommand(
		devicesCmd,
		roundTripCmd,
		arrayCmd,
		benchCmd,
	)

	return rootCmd
}
