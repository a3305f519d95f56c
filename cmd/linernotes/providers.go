package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/linernotes/internal/provider"
)

type providerInfo struct {
	Name       provider.ProviderName       `json:"name"`
	Configured bool                        `json:"configured"`
	Capability provider.ProviderCapability `json:"capability"`
	Status     *provider.Status            `json:"status,omitempty"`
}

func (c *cli) providersCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the metadata sources and optionally check connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			caps := provider.ProviderCapabilities()

			statuses := make(map[provider.ProviderName]provider.Status)
			if check {
				for _, st := range a.registry.CheckAll(cmd.Context()) {
					statuses[st.Provider] = st
				}
			}

			var infos []providerInfo
			for _, name := range provider.AllProviderNames() {
				info := providerInfo{
					Name:       name,
					Configured: a.registry.Get(name) != nil,
					Capability: caps[name],
				}
				if st, ok := statuses[name]; ok {
					info.Status = &st
				}
				infos = append(infos, info)
			}
			if a.jsonOut {
				return a.printJSON(infos)
			}

			for _, info := range infos {
				line := fmt.Sprintf("%-13s %-9s", info.Name.DisplayName(), info.Capability.Tier)
				if rl := info.Capability.RateLimit; rl != nil {
					line += fmt.Sprintf(" %g req/s", rl.RequestsPerSecond)
				}
				switch {
				case !info.Configured:
					line += "  not configured"
					if info.Capability.HelpURL != "" {
						line += " (" + info.Capability.HelpURL + ")"
					}
				case info.Status == nil:
				case info.Status.OK:
					line += fmt.Sprintf("  ok in %s", info.Status.Latency.Round(time.Millisecond))
				default:
					line += "  failed: " + info.Status.Error
				}
				fmt.Fprintln(a.out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "test the connection to each configured provider")
	return cmd
}
