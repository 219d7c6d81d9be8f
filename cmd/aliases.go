package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/opsclaw/internal/aliases"
	"github.com/nextlevelbuilder/opsclaw/internal/channels"
)

func aliasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aliases",
		Short: "Inspect the action aliases the relay would serve",
	}
	cmd.AddCommand(aliasesListCmd())
	cmd.AddCommand(aliasesMatchCmd())
	return cmd
}

func aliasesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [filter]",
		Short: "Fetch aliases and print their help lines",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := fetchRegistry(cmd.Context())
			if err != nil {
				return err
			}
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			for _, line := range reg.Commands(filter) {
				fmt.Println(line)
			}
			return nil
		},
	}
}

func aliasesMatchCmd() *cobra.Command {
	var platform string
	cmd := &cobra.Command{
		Use:   "match <text...>",
		Short: "Show which alias format matches a chat command and the extracted parameters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := fetchRegistry(cmd.Context())
			if err != nil {
				return err
			}
			normalize := channels.NormalizeCommand
			if platform == "slack" {
				normalize = channels.NormalizeSlack
			}

			text := strings.Join(args, " ")
			m, ok := reg.Match(text, normalize)
			if !ok {
				fmt.Printf("no alias matches %q\n", text)
				os.Exit(2)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "alias\t%s\n", m.Alias.Name)
			fmt.Fprintf(tw, "action\t%s\n", m.Alias.ActionRef)
			fmt.Fprintf(tw, "format\t%s\n", m.Format)
			fmt.Fprintf(tw, "display\t%s\n", m.Display)
			fmt.Fprintf(tw, "two-factor\t%t\n", m.Alias.RequiresTwoFactor())
			printParams(tw, "param", m.Params.Values)
			printParams(tw, "extra", m.Params.Extra)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "apply a platform's text normalization (e.g. slack)")
	return cmd
}

func printParams(tw *tabwriter.Writer, label string, values map[string]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s %s\t%q\n", label, k, values[k])
	}
}

func fetchRegistry(parent context.Context) (*aliases.Registry, error) {
	setupLogging()
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, cfg.RequestTimeout()+10*time.Second)
	defer cancel()

	api, err := connectAPI(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defs, err := api.client.ListAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve commands from %s: %w", cfg.ST2.APIURL, err)
	}
	reg := aliases.NewRegistry()
	reg.Reload(defs)
	return reg, nil
}
