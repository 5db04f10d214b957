package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fexd12/prometheus-tenda-exporter/pkg/reporter"
	"github.com/fexd12/prometheus-tenda-exporter/pkg/tracker"
)

func newScanCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List the clients currently connected to the router",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, registry, err := setup(cmd, o)
			if err != nil {
				return err
			}
			client, err := registry.GetOrCreate(cfg.Host, cfg.Password)
			if err != nil {
				return err
			}

			scanner := tracker.NewScanner(client)
			if _, err := scanner.Update(commandContext(cmd)); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "MAC ADDRESS\tNAME")
			for _, record := range scanner.Records() {
				name := record.Name
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(w, "%s\t%s\n", record.MAC, name)
			}
			return w.Flush()
		},
	}
}

func newStatusCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current WAN upload and download rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, registry, err := setup(cmd, o)
			if err != nil {
				return err
			}
			client, err := registry.GetOrCreate(cfg.Host, cfg.Password)
			if err != nil {
				return err
			}

			rates, err := reporter.New(client).Sample(commandContext(cmd))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "upload:   %.2f KB/s\ndownload: %.2f KB/s\n", rates.UploadKBps, rates.DownloadKBps)
			return nil
		},
	}
}
