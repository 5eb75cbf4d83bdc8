package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/teranos/courier/am"
	"github.com/teranos/courier/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(cfg *am.Config, jobNames []string) {
	info := version.Get()

	pterm.DefaultSection.Println("courier")
	fmt.Printf("  Version:  %s (commit %s)\n", info.Version, info.Short())
	fmt.Printf("  Listen:   :%d\n", cfg.Server.Port)
	fmt.Printf("  Webhook:  %s\n", orNotSet(cfg.Broker.DestinationURL))
	fmt.Printf("  Broker:   %s\n", cfg.Broker.URL)
	fmt.Printf("  Cache:    %s\n", enabled(cfg.Cache.URL != ""))
	fmt.Printf("  Sessions: %s\n", orNotSet(cfg.Database.Path))
	fmt.Printf("  Admin:    %s\n", enabled(cfg.Server.AdminToken != ""))
	fmt.Printf("  Jobs:     %s\n", strings.Join(jobNames, ", "))
	fmt.Println()
	pterm.Info.Println("Press Ctrl+C to stop")
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
