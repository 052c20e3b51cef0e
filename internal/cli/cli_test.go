package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/config"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/noise"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:         dir,
		LogLevel:        "disabled",
		HamiltonianPath: filepath.Join(dir, "Hamiltonian", "hamiltonian.txt"),
		NoiseModelDir:   filepath.Join(dir, "NoiseModel"),
		DefaultShots:    300,
		Optimizer:       &config.OptimizerConfig{Strategy: "gradient", MaxIterations: 40, Tolerance: 1e-7},
		Synthesis:       &config.SynthesisConfig{Tolerance: 1e-6, Timeout: 30 * time.Second},
		QASMHandoff:     true,
		Artifacts:       &config.ArtifactConfig{},
		Sweep:           &config.SweepConfig{},
		Maintenance:     &config.MaintenanceConfig{},
	}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(cfg *config.Config, args ...string) result {
	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr, func() (*config.Config, error) { return cfg, nil })
	code := a.execute(args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestParseRunArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    runArgs
		wantErr string
	}{
		{name: "no arguments", args: nil, wantErr: runUsage},
		{name: "seed missing", args: []string{"fakecairo"}, wantErr: runUsage},
		{name: "too many", args: []string{"fakecairo", "1", "2", "3"}, wantErr: runUsage},
		{name: "non-integer seed", args: []string{"fakecairo", "abc"}, wantErr: "Please provide a valid integer for <seed>"},
		{name: "non-integer shots", args: []string{"fakecairo", "1", "many"}, wantErr: "Please provide a valid integer for [shots]"},
		{name: "zero shots", args: []string{"fakecairo", "1", "0"}, wantErr: "Please provide a positive integer for [shots]"},
		{name: "negative shots", args: []string{"fakecairo", "1", "-5"}, wantErr: "Please provide a positive integer for [shots]"},
		{name: "default shots", args: []string{"fakecairo", "7"}, want: runArgs{noiseModel: "fakecairo", seed: 7}},
		{name: "explicit shots", args: []string{"fakekolkata", "-3", "1000"}, want: runArgs{noiseModel: "fakekolkata", seed: -3, shots: 1000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRunArgs(tt.args)
			if tt.wantErr != "" {
				var ue *usageError
				require.ErrorAs(t, err, &ue)
				assert.Equal(t, tt.wantErr, ue.msg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunWithoutArguments(t *testing.T) {
	cfg := testConfig(t)

	for _, args := range [][]string{{}, {"run"}} {
		res := runCLI(cfg, args...)
		assert.Equal(t, 1, res.code)
		assert.Equal(t, runUsage+"\n", res.stdout)
	}
}

func TestRunInvalidSeed(t *testing.T) {
	res := runCLI(testConfig(t), "run", "fakecairo", "abc")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "Please provide a valid integer for <seed>\n", res.stdout)

	res = runCLI(testConfig(t), "fakecairo", "abc")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "Please provide a valid integer for <seed>\n", res.stdout)
}

func TestRunUnknownNoiseModel(t *testing.T) {
	res := runCLI(testConfig(t), "run", "fakeparis", "1", "--no-save")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, runUsage+"\n", res.stdout)
	assert.Contains(t, res.stderr, "unknown noise model")

	// Legacy positional form reports the same way
	res = runCLI(testConfig(t), "fakeparis", "1")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, runUsage+"\n", res.stdout)
}

func TestRunRejectsZeroShots(t *testing.T) {
	res := runCLI(testConfig(t), "run", "fakemontreal", "7", "0", "--no-save")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "Please provide a positive integer for [shots]\n", res.stdout)
}

func TestInitWritesInputs(t *testing.T) {
	cfg := testConfig(t)

	res := runCLI(cfg, "init")
	require.Equal(t, 0, res.code, res.stderr)
	assert.FileExists(t, cfg.HamiltonianPath)
	for _, name := range noise.SupportedDevices {
		assert.FileExists(t, noise.Path(cfg.NoiseModelDir, name))
		assert.Contains(t, res.stdout, noise.Path(cfg.NoiseModelDir, name))
	}

	content, err := os.ReadFile(cfg.HamiltonianPath)
	require.NoError(t, err)
	h, diags := hamiltonian.NewParser(zerolog.Nop()).Parse(string(content), 0)
	assert.Empty(t, diags)
	assert.Equal(t, 4, h.Width)

	// Existing files are kept without --force
	res = runCLI(cfg, "init")
	require.Equal(t, 0, res.code)
	assert.Empty(t, res.stdout)

	res = runCLI(cfg, "init", "--force")
	require.Equal(t, 0, res.code)
	assert.Len(t, strings.Split(strings.TrimSpace(res.stdout), "\n"), 1+len(noise.SupportedDevices))
}

func TestNoiseModelExport(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(t.TempDir(), "models")

	res := runCLI(cfg, "noise-model", "export", "fakecairo", "--dir", dir)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, noise.Path(dir, "fakecairo")+"\n", res.stdout)

	m, err := noise.Load(dir, "fakecairo")
	require.NoError(t, err)
	assert.Equal(t, 27, m.NumQubits)

	res = runCLI(cfg, "noise-model", "export", "fakeparis", "--dir", dir)
	assert.Equal(t, 1, res.code)
	assert.NoFileExists(t, noise.Path(dir, "fakeparis"))

	res = runCLI(cfg, "noise-model", "list")
	require.Equal(t, 0, res.code)
	assert.Equal(t, strings.Join(noise.SupportedDevices, "\n")+"\n", res.stdout)
}

func TestHamiltonianExportAndCheck(t *testing.T) {
	cfg := testConfig(t)

	res := runCLI(cfg, "hamiltonian", "export")
	require.Equal(t, 0, res.code, res.stderr)
	h, diags := hamiltonian.NewParser(zerolog.Nop()).Parse(res.stdout, 0)
	assert.Empty(t, diags)
	assert.NotEmpty(t, h.Terms)

	path := filepath.Join(t.TempDir(), "h.txt")
	require.NoError(t, os.WriteFile(path, []byte("-0.5 * XIZ\n+ 0.25 * YYI\ngarbage\n"), 0644))

	res = runCLI(cfg, "hamiltonian", "check", path, "--width", "5")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "width: 5\nterms: 2\nrejected: 1\n")
	assert.Contains(t, res.stdout, "line 3: garbage")

	res = runCLI(cfg, "hamiltonian", "check", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Equal(t, 1, res.code)
}

func TestMoleculeExport(t *testing.T) {
	cfg := testConfig(t)

	res := runCLI(cfg, "molecule", "export")
	require.Equal(t, 0, res.code, res.stderr)
	assert.True(t, strings.HasPrefix(res.stdout, "&FCI NORB=2,NELEC=2,MS2=0,"))

	out := filepath.Join(t.TempDir(), "h2.fcidump")
	res = runCLI(cfg, "molecule", "export", "-o", out)
	require.Equal(t, 0, res.code)
	assert.FileExists(t, out)
}

func TestRunEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline run")
	}
	cfg := testConfig(t)
	require.Equal(t, 0, runCLI(cfg, "init").code)

	res := runCLI(cfg, "run", "fakemontreal", "11", "300")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Regexp(t, regexp.MustCompile(`^Accuracy Score: -?\d+\.\d{6}%\n$`), res.stdout)
	assert.FileExists(t, filepath.Join(cfg.DataDir, "runs.db"))
}
