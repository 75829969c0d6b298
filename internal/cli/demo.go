package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daryltucker/vlm-bench/internal/accel"
	"github.com/daryltucker/vlm-bench/internal/engine"
	"github.com/daryltucker/vlm-bench/internal/model"
	"github.com/daryltucker/vlm-bench/internal/output"
	"github.com/daryltucker/vlm-bench/internal/report"
)

var (
	demoImage    string
	demoPrompt   string
	demoModelDir string
	demoVariant  string
	demoBackend  string
	demoDevice   string
)

const banner = "======================================"

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Describe one image with one model",
	Long: `Loads a single (backend, variant, device) configuration, runs the image
and prompt through it and prints the response with its timings.`,
	Example: `  vlm-bench demo -i ./cat.jpg -p "What animal is this?"
  vlm-bench demo -i ./cat.jpg -p "Describe the scene" -b llava-cli -s large -d gpu`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if demoModelDir != "" {
			cfg.ModelDir = demoModelDir
		}

		dev, err := model.ParseDevice(demoDevice)
		if err != nil {
			return err
		}
		if _, err := os.Stat(demoImage); err != nil {
			return fmt.Errorf("image file not found: %s", demoImage)
		}
		mode, err := accel.ParseMode(cfg.Accelerator)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, banner)
		fmt.Fprintln(w, "VLM Demo")
		fmt.Fprintln(w, banner)
		fmt.Fprintf(w, "Image: %s\n", demoImage)
		fmt.Fprintf(w, "Prompt: %s\n", demoPrompt)
		fmt.Fprintf(w, "Model: %s (%s on %s)\n", demoVariant, demoBackend, dev)
		fmt.Fprintln(w, strings.Repeat("-", len(banner)))

		driver := engine.NewDriver(engine.NewRegistry(cfg), accel.ForMode(mode, output.Logger))
		m := engine.Matrix{
			Backends:  []string{demoBackend},
			Variants:  []string{demoVariant},
			Devices:   []model.Device{dev},
			ModelDir:  cfg.ModelDir,
			ImagePath: demoImage,
			Prompt:    demoPrompt,
		}
		configs := driver.Plan(cmd.Context(), m)
		if len(configs) == 0 {
			return fmt.Errorf("no accelerator available for %s", dev)
		}

		o := driver.Execute(cmd.Context(), configs[0], m.ModelDir, m.ImagePath, m.Prompt)
		if !o.OK() {
			return o.Err
		}
		r := o.Result
		fmt.Fprintf(w, "Model loaded in %s\n", report.FormatDuration(r.LoadDuration))
		fmt.Fprintf(w, "Processing completed in %s\n", report.FormatDuration(r.PreprocessDuration+r.GenerateDuration))

		fmt.Fprintf(w, "\n%s\nRESPONSE:\n%s\n%s\n%s\n", banner, banner, strings.TrimSpace(r.Output), banner)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().StringVarP(&demoImage, "image", "i", "", "Path to the image file")
	demoCmd.Flags().StringVarP(&demoPrompt, "prompt", "p", "", "Text prompt for the model")
	demoCmd.Flags().StringVarP(&demoModelDir, "model-dir", "m", "", "Path to the model directory (overrides config)")
	demoCmd.Flags().StringVarP(&demoVariant, "variant", "s", "small", "Model variant to use")
	demoCmd.Flags().StringVarP(&demoBackend, "backend", "b", "ollama", "Backend to use")
	demoCmd.Flags().StringVarP(&demoDevice, "device", "d", "cpu", "Device to run on (cpu or gpu)")
	_ = demoCmd.MarkFlagRequired("image")
	_ = demoCmd.MarkFlagRequired("prompt")
}
