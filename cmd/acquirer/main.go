package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/lumascope/acquirer/internal/log"
	"github.com/lumascope/acquirer/internal/model"

	"github.com/spf13/cobra"
)

var (
	config model.Config

	flagScenarioPath string
	flagVerbose      bool
	flagZStack       bool
	flagCancelAfter  time.Duration
)

func main() {
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	runCmd.Flags().StringVar(&flagScenarioPath, "scenario", "scenario.yaml", "yaml scenario file describing the simulated streams")
	runCmd.Flags().BoolVar(&flagZStack, "zstack", false, "acquire streams with zlevels as a Z stack")
	runCmd.Flags().DurationVar(&flagCancelAfter, "cancel-after", 0, "cancel the job after this duration, 0 disables")

	// never print messages
	rootCmd.SilenceErrors = true

	rootCmd.PersistentPreRunE = initAcquirer

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("acquirer failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "acquirer",
	Short:        "Coordinated multi-stream acquisition on a simulated microscope",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run loads a scenario and executes one coordinated acquisition",
	RunE:  doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides the version of acquirer",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("acquirer: version info not available")
		}

		fmt.Printf("acquirer: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func initAcquirer(cmd *cobra.Command, _ []string) error {
	slog.SetDefault(log.New(flagVerbose))

	if cmd == versionCmd {
		return nil
	}

	f, err := os.Open(flagScenarioPath)
	if err != nil {
		return fmt.Errorf("opening scenario: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	config, err = model.ParseConfig(f)
	if err != nil {
		return fmt.Errorf("parsing scenario %s: %w", flagScenarioPath, err)
	}

	slog.Debug("acquirer run", "scenario", flagScenarioPath, "streams", len(config.Streams))
	return nil
}
