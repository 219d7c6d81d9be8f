package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/opsclaw/internal/aliases"
	"github.com/nextlevelbuilder/opsclaw/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and st2 API reachability",
		Run: func(cmd *cobra.Command, args []string) {
			if !runDoctor() {
				os.Exit(1)
			}
		},
	}
}

func runDoctor() bool {
	fmt.Println("opsclaw doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults and environment)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return false
	}

	masked, _ := json.MarshalIndent(cfg.MaskedCopy(), "    ", "  ")
	fmt.Printf("  Effective config:\n    %s\n\n", masked)

	warnings, verr := cfg.Validate()
	for _, w := range warnings {
		fmt.Printf("  [warn] %s\n", w)
	}
	if verr != nil {
		fmt.Printf("  [fail] %s\n", verr)
		return false
	}
	fmt.Printf("  [ok]   configuration valid (credential: %s)\n", cfg.Credential())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout()+10*time.Second)
	defer cancel()

	api, err := connectAPI(ctx, cfg)
	if err != nil {
		fmt.Printf("  [fail] st2 authentication: %s\n", err)
		return false
	}
	defs, err := api.client.ListAliases(ctx)
	if err != nil {
		fmt.Printf("  [fail] st2 API %s: %s\n", cfg.ST2.APIURL, err)
		return false
	}
	reg := aliases.NewRegistry()
	n := reg.Reload(defs)
	fmt.Printf("  [ok]   st2 API reachable: %d aliases, %d matchers\n", len(defs), n)

	if names := cfg.Channels.EnabledNames(); len(names) == 0 {
		fmt.Println("  [warn] no chat channels enabled")
	} else {
		fmt.Printf("  [ok]   channels: %v\n", names)
	}
	return true
}
