package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/courier/am"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Show courier configuration",
	Long: `am - Show courier configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (COURIER_* prefix, e.g. COURIER_BROKER_TOKEN)
2. Project config (./courier.toml, searched upwards)
3. User config (~/.courier/am.toml)
4. System config (/etc/courier/config.toml)
5. Default values

Secrets are always masked.

Examples:
  courier am show                 # Effective configuration as TOML
  courier am show --format json
  courier am show --sources       # Each setting with where it came from
  courier am validate`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmValidate,
}

var (
	configFormat string
	showSources  bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amShowCmd.Flags().BoolVar(&showSources, "sources", false, "Show where each setting comes from")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	if showSources {
		return renderSources(am.Introspect())
	}

	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	redacted := cfg.Redacted()

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))
	case "toml":
		data, err := am.MarshalTOML(redacted)
		if err != nil {
			return err
		}
		fmt.Printf("# courier configuration\n%s", data)
	case "yaml":
		data, err := am.MarshalYAML(redacted)
		if err != nil {
			return err
		}
		fmt.Printf("# courier configuration\n%s", data)
	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func renderSources(settings []am.SettingInfo) error {
	data := pterm.TableData{{"KEY", "VALUE", "SOURCE", "FROM"}}
	for _, s := range settings {
		data = append(data, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	pterm.Success.Println("Configuration is valid")

	if err := cfg.RequireBroker(); err != nil {
		pterm.Warning.Printf("Broker publishing disabled: %v\n", err)
	}
	if err := cfg.RequireSigningKeys(); err != nil {
		pterm.Warning.Printf("Webhook cannot verify deliveries: %v\n", err)
	}
	return nil
}
