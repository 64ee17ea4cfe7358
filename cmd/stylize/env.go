package main

import (
	"fmt"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gogpu/styletransfer/backend"
	"github.com/gogpu/styletransfer/capture"
	"github.com/gogpu/styletransfer/config"
)

func NewEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show configuration and available backends",
		Args:  cobra.NoArgs,
		RunE:  envHandler,
	}
}

func envHandler(cmd *cobra.Command, _ []string) error {
	vars := config.AsMap()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var data [][]string
	for _, name := range names {
		v := vars[name]
		data = append(data, []string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}

	w := cmd.OutOrStdout()
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "VALUE", "DESCRIPTION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\nbackends: %v\n", backend.Available())
	if ps := capture.Providers(); len(ps) > 0 {
		fmt.Fprintf(w, "capture providers: %v\n", ps)
	}
	return nil
}
