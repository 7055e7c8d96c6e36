package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/shield"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "resolve":
		handleResolve()
	case "test":
		handleTest()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("shield-config - Configuration tool for shield")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  shield-config convert <input> <output>      - Convert between formats")
	fmt.Println("  shield-config validate <file>               - Validate configuration")
	fmt.Println("  shield-config stats <file>                  - Show configuration statistics")
	fmt.Println("  shield-config resolve <file> <uri>          - Resolve a URI against the configured hierarchy")
	fmt.Println("  shield-config test <pattern> <uri> [uri...] - Dry-run a pattern against URIs")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: shield-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := shield.NewConfigLoader().LoadFile(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: shield-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := shield.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("  %v\n", e)
		}
		fmt.Printf("%d problem(s) found\n", len(errs))
		os.Exit(1)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version:   %d\n", cfg.Version)
	fmt.Printf("  Resources: %d\n", len(cfg.Resources))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: shield-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := shield.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	var literal, parameterized, wildcarded, inactive, roots int
	for _, rc := range cfg.Resources {
		cp, err := shield.CompilePattern(rc.URI)
		if err != nil {
			continue
		}
		switch {
		case cp.HasWildcard():
			wildcarded++
		case cp.HasParameter():
			parameterized++
		default:
			literal++
		}
		if rc.Inactive {
			inactive++
		}
		if rc.ParentID == "" {
			roots++
		}
	}

	fmt.Println("Resources:")
	fmt.Printf("  Total:         %d\n", len(cfg.Resources))
	fmt.Printf("  Literal:       %d\n", literal)
	fmt.Printf("  Parameterized: %d\n", parameterized)
	fmt.Printf("  Wildcarded:    %d\n", wildcarded)
	fmt.Printf("  Inactive:      %d\n", inactive)
	fmt.Printf("  Roots:         %d\n", roots)
	fmt.Println()

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Resolve cache TTL:    %dms\n", cfg.Engine.ResolveCacheTTL)
	fmt.Printf("  Max traversal depth:  %d\n", cfg.Engine.MaxDepth)
	fmt.Printf("  Audit batch size:     %d\n", cfg.Engine.AuditBatchSize)
	fmt.Printf("  Audit flush interval: %dms\n", cfg.Engine.AuditFlushInterval)
}

func handleResolve() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: shield-config resolve <file> <uri>")
		os.Exit(1)
	}

	filename := os.Args[2]
	uri := os.Args[3]

	cfg, err := shield.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	engine, err := shield.NewEngine(shield.NewMemoryResourceStore(), nil, shield.WithConfig(cfg))
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	res, err := engine.Resolve(ctx, uri)
	if err != nil {
		fmt.Printf("Error resolving: %v\n", err)
		os.Exit(1)
	}
	if res == nil {
		fmt.Printf("No resource governs %s\n", uri)
	} else {
		fmt.Printf("Matched resource: %s (%s)\n", res.Resource.ID, res.Resource.URI)
		fmt.Printf("  Confidence: %.3f\n", res.Confidence)
		for k, v := range res.Parameters {
			fmt.Printf("  Param %s = %s\n", k, v)
		}
	}

	status, err := engine.ProtectionStatus(ctx, uri)
	if err != nil {
		fmt.Printf("Error classifying: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Protection level: %s (%d matching pattern(s))\n", status.Level, len(status.Matches))
}

func handleTest() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: shield-config test <pattern> <uri> [uri...]")
		os.Exit(1)
	}

	pattern := os.Args[2]
	uris := os.Args[3:]

	engine, err := shield.NewEngine(shield.NewMemoryResourceStore(), nil)
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	results, err := engine.TestPattern(pattern, uris)
	if err != nil {
		fmt.Printf("Invalid pattern: %v\n", err)
		os.Exit(1)
	}
	for _, r := range results {
		if r.IsMatch {
			fmt.Printf("MATCH    %s (confidence %.3f)", r.URI, r.Confidence)
			if len(r.Parameters) > 0 {
				fmt.Printf(" %v", r.Parameters)
			}
			fmt.Println()
		} else {
			fmt.Printf("NO MATCH %s\n", r.URI)
		}
	}
}

func saveConfig(cfg *shield.Config, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
