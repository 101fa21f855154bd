package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/veildata/veil/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (data dir, patterns, keys, SQLite, detectors)",
	Long:  "Verifies the data directory is writable, the pattern library compiles, signing and audit keys are usable, the audit DB opens, and configured external detectors have credentials.",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

//nolint:gocyclo // preflight runs a linear sequence of independent checks
func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out := cmd.OutOrStdout()
	ok := true

	// 1. Data directory writable
	dataDir := cfg.DataDir
	if err := cfg.EnsureDataDir(); err != nil {
		fmt.Fprintf(out, "✗ Data directory: %s — %v\n", dataDir, err)
		ok = false
	} else {
		testFile := filepath.Join(dataDir, ".doctor-write-test")
		if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
			fmt.Fprintf(out, "✗ Data directory: %s not writable — %v\n", dataDir, err)
			ok = false
		} else {
			_ = os.Remove(testFile)
			fmt.Fprintf(out, "✓ Data directory: %s (writable)\n", dataDir)
		}
	}

	// 2. Pattern library compiles
	library, err := buildLibrary(cfg)
	if err != nil {
		fmt.Fprintf(out, "✗ Patterns: %v\n", err)
		ok = false
	} else if cfg.PatternsFile != "" {
		fmt.Fprintf(out, "✓ Patterns: %d types, %d patterns (built-ins + %s)\n",
			len(library.Types()), library.PatternCount(), cfg.PatternsFile)
	} else {
		fmt.Fprintf(out, "✓ Patterns: %d types, %d patterns (built-ins)\n",
			len(library.Types()), library.PatternCount())
	}

	// 3. Crypto keys (warn if default or absent)
	if cfg.UsingDefaultSigningKey() {
		fmt.Fprintf(out, "⚠ Signing key: using generated default — set VEIL_SIGNING_KEY for production\n")
	} else {
		fmt.Fprintf(out, "✓ Signing key: configured\n")
	}
	if !cfg.SealingEnabled() {
		fmt.Fprintf(out, "⚠ Audit key: not set — job detail payloads will not be persisted\n")
	} else {
		fmt.Fprintf(out, "✓ Audit key: configured (detail payloads sealed at rest)\n")
	}

	// 4. SQLite audit store
	store, err := openAuditStore(cfg)
	if err != nil {
		fmt.Fprintf(out, "✗ Audit DB: %v\n", err)
		ok = false
	} else {
		count, countErr := store.Count(ctx)
		_ = store.Close()
		if countErr != nil {
			fmt.Fprintf(out, "✗ Audit DB: %v\n", countErr)
			ok = false
		} else {
			fmt.Fprintf(out, "✓ Audit DB: %s (%d jobs)\n", cfg.AuditDBPath(), count)
		}
	}

	// 5. External detectors
	detectors := buildDetectors(ctx, cfg)
	if len(detectors) == 0 {
		fmt.Fprintf(out, "✓ Detectors: regex (pattern library only)\n")
	} else {
		var ready, missing []string
		for _, d := range detectors {
			if d.Available() {
				ready = append(ready, d.Name())
			} else {
				missing = append(missing, d.Name())
			}
		}
		if len(ready) > 0 {
			fmt.Fprintf(out, "✓ Detectors: regex, %s\n", strings.Join(ready, ", "))
		}
		if len(missing) > 0 {
			fmt.Fprintf(out, "✗ Detectors: %s enabled but credentials missing\n", strings.Join(missing, ", "))
			ok = false
		}
	}

	if !ok {
		return fmt.Errorf("preflight checks failed")
	}
	fmt.Fprintf(out, "\nAll checks passed.\n")
	return nil
}
