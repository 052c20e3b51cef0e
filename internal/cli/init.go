package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/molecule"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/noise"
	"github.com/spf13/cobra"
)

func (a *app) initCmd() *cobra.Command {
	var force bool

	c := &cobra.Command{
		Use:   "init",
		Short: "Write the Hamiltonian file and every noise model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := a.setup()
			if err != nil {
				return err
			}

			model, err := loadModel(cfg.MoleculePath)
			if err != nil {
				return err
			}

			written, err := writeHamiltonianFile(cfg.HamiltonianPath, model, force)
			if err != nil {
				return err
			}
			if written {
				fmt.Fprintln(a.stdout, cfg.HamiltonianPath)
			} else {
				log.Info().Str("path", cfg.HamiltonianPath).Msg("Hamiltonian file exists, skipping")
			}

			for _, name := range noise.SupportedDevices {
				path := noise.Path(cfg.NoiseModelDir, name)
				if !force && fileExists(path) {
					log.Info().Str("path", path).Msg("Noise model exists, skipping")
					continue
				}
				path, err := exportNoiseModel(cfg.NoiseModelDir, name)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, path)
			}
			return nil
		},
	}

	c.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return c
}

// loadModel reads the molecule descriptor at path, or returns the built-in
// H2 model when path is empty.
func loadModel(path string) (*molecule.Model, error) {
	if path == "" {
		return molecule.H2(), nil
	}
	return molecule.Load(path)
}

// writeHamiltonianFile writes the electronic qubit Hamiltonian of model.
// It reports false when the file exists and force is off.
func writeHamiltonianFile(path string, model *molecule.Model, force bool) (bool, error) {
	if !force && fileExists(path) {
		return false, nil
	}
	h, err := model.QubitHamiltonian()
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, domain.NewPathError("init", domain.KindIO, path, err)
	}
	if err := os.WriteFile(path, []byte(hamiltonian.Format(h)), 0644); err != nil {
		return false, domain.NewPathError("init", domain.KindIO, path, err)
	}
	return true, nil
}

// exportNoiseModel writes the calibration profile of name into dir
func exportNoiseModel(dir, name string) (string, error) {
	m, err := noise.Profile(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", domain.NewPathError("noise-model export", domain.KindIO, dir, err)
	}
	return noise.Save(dir, m)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
