package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/jpfielding/jxl.go/pkg/util"
	"github.com/spf13/cobra"
)

// NewEncodeCmd compresses png, gif or jpeg input into JPEG XL
func NewEncodeCmd(ctx context.Context, st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode <in> <out.jxl>",
		Short: "encode png, gif or jpeg to jxl",
		Long:  "encode png, gif or jpeg to jxl. Either path may be '-' and may end in .gz or .zst. JPEG input is recompressed losslessly unless --pixels is set.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("lossless") {
				st.cfg.Encode.Lossless, _ = flags.GetBool("lossless")
			}
			if flags.Changed("speed") {
				st.cfg.Encode.Speed, _ = flags.GetString("speed")
			}
			if flags.Changed("distance") {
				st.cfg.Encode.Distance, _ = flags.GetFloat32("distance")
			}
			if flags.Changed("quality") {
				q, _ := flags.GetFloat32("quality")
				st.cfg.Encode.Quality = &q
			}
			if flags.Changed("container") {
				st.cfg.Encode.Container, _ = flags.GetBool("container")
			}
			pixels, _ := flags.GetBool("pixels")

			in, err := util.ReadFile(args[0])
			if err != nil {
				return err
			}
			log := slog.Default().With("in", args[0], "content", util.ContentID(in))

			b, err := st.wiring.encoder()
			if err != nil {
				return err
			}
			enc, err := b.Logger(log).Build()
			if err != nil {
				return err
			}
			defer enc.Close()

			var out []byte
			_, format, err := image.DecodeConfig(bytes.NewReader(in))
			if err != nil {
				return fmt.Errorf("unrecognized input: %w", err)
			}
			if format == "jpeg" && !pixels {
				out, err = enc.EncodeJPEG(in)
			} else {
				var img image.Image
				img, _, err = image.Decode(bytes.NewReader(in))
				if err != nil {
					return fmt.Errorf("decode %s: %w", format, err)
				}
				out, err = enc.EncodeImage(img)
			}
			if err != nil {
				return err
			}
			log.InfoContext(ctx, "encoded", "format", format, "in_bytes", len(in), "out_bytes", len(out),
				"ratio", fmt.Sprintf("%.3f", float64(len(out))/float64(len(in))))
			return util.WriteFile(args[1], out)
		},
	}
	pf := cmd.Flags()
	pf.Bool("lossless", false, "mathematically lossless")
	pf.StringP("speed", "s", "", "effort tier (lightning .. tortoise) or 1-9")
	pf.Float32P("distance", "d", 1, "butteraugli distance, 0-25")
	pf.Float32P("quality", "q", 90, "quality 0-100, overrides distance")
	pf.Bool("container", false, "wrap the codestream in the ISOBMFF container")
	pf.Bool("pixels", false, "encode jpeg input from decoded pixels instead of recompressing")
	return cmd
}
