package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/styletransfer"
	"github.com/gogpu/styletransfer/config"
	"github.com/gogpu/styletransfer/imageio"
	"github.com/gogpu/styletransfer/style"
)

func NewEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode STYLE_IMAGE OUTPUT",
		Short: "Predict a style encoding",
		Long: `Run style prediction on an image and write the encoding as a flat
little-endian array: float16 when OUTPUT ends in .f16, float32 otherwise.`,
		Args: cobra.ExactArgs(2),
		RunE: encodeHandler,
	}
	cmd.Flags().StringP("settings", "s", "", "Settings file (required)")
	cmd.Flags().String("backend", "", "Execution backend")
	_ = cmd.MarkFlagRequired("settings")
	return cmd
}

func encodeHandler(cmd *cobra.Command, args []string) error {
	path, err := cmd.Flags().GetString("settings")
	if err != nil {
		return err
	}
	backend, err := cmd.Flags().GetString("backend")
	if err != nil {
		return err
	}
	settings, err := config.LoadSettings(path)
	if err != nil {
		return err
	}

	s, err := styletransfer.New(styletransfer.WithSettings(settings), styletransfer.WithBackend(backendName(backend, settings)))
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.LoadNetworks(cmd.Context()); err != nil {
		return err
	}

	img, err := imageio.Load(args[0])
	if err != nil {
		return err
	}
	enc, err := s.PredictEncoding(img)
	if err != nil {
		return err
	}
	if err := style.WriteEncodingFile(args[1], enc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d values\n", args[1], len(enc))
	return nil
}
