package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/neurotrace/connectome/internal/domain"
	"github.com/neurotrace/connectome/internal/generator"
)

func main() {
	cfg := generator.DefaultConfig()
	var (
		neurons       = flag.Int("neurons", cfg.NumNeurons, "number of neurons to generate")
		outDegree     = flag.Int("out-degree", cfg.MeanOutDegree, "mean number of downstream partners per neuron")
		maxWeight     = flag.Int64("max-weight", cfg.MaxWeight, "largest synapse count of a single connection")
		typedChance   = flag.Float64("typed-chance", cfg.TypedChance, "probability that a neuron has a cell type")
		inChance      = flag.Float64("interneuron-chance", cfg.InterneuronChance, "probability that a typed neuron is an interneuron")
		untracedInput = flag.Float64("untraced-chance", cfg.UntracedInputChance, "probability of extra inputs from untraced fragments")
		space         = flag.String("space", string(cfg.Space), "identifier space: manc or fanc")
		seed          = flag.Int64("seed", cfg.Seed, "random seed for deterministic generation")
		outputDir     = flag.String("output-dir", "seed-data", "directory to write neurons.json and connections.json")
		writeStdout   = flag.Bool("stdout", false, "write combined dataset to stdout instead of files")
	)
	flag.Parse()

	genCfg := generator.Config{
		NumNeurons:          *neurons,
		MeanOutDegree:       *outDegree,
		MaxWeight:           *maxWeight,
		TypedChance:         clampProbability(*typedChance),
		InterneuronChance:   clampProbability(*inChance),
		UntracedInputChance: clampProbability(*untracedInput),
		Space:               domain.Space(*space),
		Seed:                *seed,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	gen := generator.New(genCfg)
	dataset, err := gen.Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)
		os.Exit(1)
	}

	if *writeStdout {
		if err := json.NewEncoder(os.Stdout).Encode(dataset); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write dataset to stdout: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := generator.WriteDataset(dataset, *outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write dataset: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "Generated %d neurons and %d connections into %s\n", len(dataset.Neurons), len(dataset.Connections), *outputDir)
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
