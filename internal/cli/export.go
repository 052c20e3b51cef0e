package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/molecule"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/noise"
	"github.com/spf13/cobra"
)

func (a *app) noiseModelCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "noise-model",
		Short: "Inspect and export device noise models",
	}

	var dir string
	export := &cobra.Command{
		Use:   "export [name...]",
		Short: "Write noise model files (all devices when no name is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.setup()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.NoiseModelDir
			}
			names := args
			if len(names) == 0 {
				names = noise.SupportedDevices
			}
			for _, name := range names {
				if !noise.IsSupported(name) {
					return domain.NewError("noise-model export", domain.KindArgument,
						fmt.Errorf("unknown noise model %q (want one of %v)", name, noise.SupportedDevices))
				}
			}
			for _, name := range names {
				path, err := exportNoiseModel(dir, name)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, path)
			}
			return nil
		},
	}
	export.Flags().StringVar(&dir, "dir", "", "output directory (default NOISE_MODEL_DIR)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List supported noise models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range noise.SupportedDevices {
				fmt.Fprintln(a.stdout, name)
			}
			return nil
		},
	}

	c.AddCommand(export, list)
	return c
}

func (a *app) hamiltonianCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "hamiltonian",
		Short: "Export and check Hamiltonian files",
	}

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the qubit Hamiltonian of the configured molecule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := a.setup()
			if err != nil {
				return err
			}
			model, err := loadModel(cfg.MoleculePath)
			if err != nil {
				return err
			}
			if out == "" {
				h, err := model.QubitHamiltonian()
				if err != nil {
					return err
				}
				_, err = io.WriteString(a.stdout, hamiltonian.Format(h))
				return err
			}
			if _, err := writeHamiltonianFile(out, model, true); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, out)
			return nil
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")

	var width int
	check := &cobra.Command{
		Use:   "check <file>",
		Short: "Parse a Hamiltonian file and report rejected lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, err := a.setup()
			if err != nil {
				return err
			}
			if width < 0 {
				return domain.NewError("hamiltonian check", domain.KindArgument,
					fmt.Errorf("width must not be negative, got %d", width))
			}
			h, diags, err := hamiltonian.NewParser(log).ParseFile(args[0], width)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "width: %d\nterms: %d\nrejected: %d\n", h.Width, len(h.Terms), len(diags))
			for _, d := range diags {
				fmt.Fprintf(a.stdout, "  line %d: %s (%s)\n", d.Line, d.Text, d.Reason)
			}
			return nil
		},
	}
	check.Flags().IntVar(&width, "width", 0, "pad operators to this many qubits (0 keeps the logical width)")

	c.AddCommand(export, check)
	return c
}

func (a *app) moleculeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "molecule",
		Short: "Inspect the configured molecule",
	}

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the molecular integrals as FCIDUMP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := a.setup()
			if err != nil {
				return err
			}
			model, err := loadModel(cfg.MoleculePath)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := molecule.WriteFCIDump(&buf, model); err != nil {
				return err
			}
			if out == "" {
				_, err = a.stdout.Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
				return domain.NewPathError("molecule export", domain.KindIO, out, err)
			}
			fmt.Fprintln(a.stdout, out)
			return nil
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")

	c.AddCommand(export)
	return c
}
