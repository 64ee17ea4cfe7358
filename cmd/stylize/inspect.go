package main

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gogpu/styletransfer/inference"
	"github.com/gogpu/styletransfer/tensor"
)

func NewInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect MANIFEST",
		Short: "Show the tensors of a network manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectHandler,
	}
}

func inspectHandler(cmd *cobra.Command, args []string) error {
	m, err := inference.ReadManifest(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: operator %s, %s, up to %d contexts\n\n", m.Name, m.Operator, deviceName(m.Device), m.MaxContexts)

	var data [][]string
	add := func(kind string, descs []inference.TensorDesc) {
		for i, d := range descs {
			data = append(data, []string{kind, strconv.Itoa(i), d.Name, d.Shape.String(), strconv.FormatUint(tensor.BufferSize(d.Shape), 10)})
		}
	}
	add("input", m.Inputs)
	add("output", m.Outputs)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"KIND", "INDEX", "NAME", "SHAPE", "BYTES"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
	return nil
}

func deviceName(s string) string {
	dt, err := inference.ParseDeviceType(s)
	if err != nil {
		return s
	}
	return dt.String()
}
