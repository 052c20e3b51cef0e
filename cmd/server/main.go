// Package main is the entry point of the noise-aware VQE pipeline.
//
// Subcommands:
//   - run <noisemodel_name> <seed> [shots]: one pipeline run, prints the accuracy score
//   - serve: HTTP API with run streams and scheduled benchmark sweeps
//   - init: writes the Hamiltonian file and every noise model
//   - noise-model, hamiltonian, molecule: input export and inspection
package main

import "github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/cli"

func main() {
	cli.Execute()
}
