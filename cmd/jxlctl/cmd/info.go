package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jpfielding/jxl.go/pkg/jxl"
	"github.com/jpfielding/jxl.go/pkg/util"
	"github.com/spf13/cobra"
)

// NewInfoCmd prints the header of a JPEG XL file
func NewInfoCmd(ctx context.Context, st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <in.jxl>",
		Short: "print the jxl header",
		Long:  "print the jxl header. The path may be '-' and may end in .gz or .zst.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := util.ReadFile(args[0])
			if err != nil {
				return err
			}
			b, err := st.wiring.decoder()
			if err != nil {
				return err
			}
			dec, err := b.Build()
			if err != nil {
				return err
			}
			defer dec.Close()
			info, err := dec.Info(in)
			if err != nil {
				return err
			}
			report := struct {
				Path      string        `json:"path"`
				Content   string        `json:"content"`
				Bytes     int           `json:"bytes"`
				Signature string        `json:"signature"`
				Info      jxl.BasicInfo `json:"info"`
			}{args[0], util.ContentID(in), len(in), jxl.CheckSignature(in).String(), info}

			switch format, _ := cmd.Flags().GetString("format"); format {
			case "text":
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %dx%d, %d bits, %d color channels, %d extra\n",
					report.Path, report.Signature, info.Width, info.Height, info.BitsPerSample,
					info.NumColorChannels, info.NumExtraChannels)
			default:
				j, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(j))
			}
			return nil
		},
	}
	pf := cmd.Flags()
	pf.StringP("format", "f", "json", "output format (text|json)")
	return cmd
}
