package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/vlm-bench/internal/accel"
	"github.com/daryltucker/vlm-bench/internal/output"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Report whether an accelerator is available",
	Long: `Runs the same accelerator check 'run' uses before expanding the matrix.
With accelerator: auto the host's vendor tools (nvidia-smi, rocm-smi) are
queried; run with --log-level debug to see why a check failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mode, err := accel.ParseMode(cfg.Accelerator)
		if err != nil {
			return err
		}

		available := accel.Safe(accel.ForMode(mode, output.Logger), output.Logger)(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "accelerator: %s (mode %s)\n", availability(available), mode)
		return nil
	},
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
