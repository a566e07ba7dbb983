package cmd

import (
	"bytes"
	"context"
	"image/png"
	"log/slog"

	"github.com/jpfielding/jxl.go/pkg/util"
	"github.com/spf13/cobra"
)

// NewDecodeCmd decodes JPEG XL into png, or raw samples in the preset's pixel format
func NewDecodeCmd(ctx context.Context, st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <in.jxl> <out>",
		Short: "decode jxl to png or raw samples",
		Long:  "decode jxl to png, or with --raw to packed samples in the decode preset's pixel format. Either path may be '-' and may end in .gz or .zst.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			raw, _ := flags.GetBool("raw")
			if flags.Changed("channels") {
				st.cfg.Decode.Channels, _ = flags.GetInt("channels")
			}
			if flags.Changed("type") {
				st.cfg.Decode.DataType, _ = flags.GetString("type")
			}
			if flags.Changed("endian") {
				st.cfg.Decode.Endianness, _ = flags.GetString("endian")
			}
			if flags.Changed("keep-orientation") {
				st.cfg.Decode.KeepOrientation, _ = flags.GetBool("keep-orientation")
			}

			in, err := util.ReadFile(args[0])
			if err != nil {
				return err
			}
			log := slog.Default().With("in", args[0], "content", util.ContentID(in))
			b, err := st.wiring.decoder()
			if err != nil {
				return err
			}
			dec, err := b.Logger(log).Build()
			if err != nil {
				return err
			}
			defer dec.Close()

			if raw {
				img, err := dec.Decode(in)
				if err != nil {
					return err
				}
				log.InfoContext(ctx, "decoded", "width", img.Width, "height", img.Height, "format", img.Format.String())
				return util.WriteFile(args[1], img.Packed())
			}
			img, err := dec.DecodeImage(in)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return err
			}
			log.InfoContext(ctx, "decoded", "bounds", img.Bounds().String(), "png_bytes", buf.Len())
			return util.WriteFile(args[1], buf.Bytes())
		},
	}
	pf := cmd.Flags()
	pf.Bool("raw", false, "write packed samples instead of png")
	pf.Int("channels", 4, "raw output channels (1, 3, 4)")
	pf.String("type", "u8", "raw output sample type (u8, u16, f32)")
	pf.String("endian", "native", "raw output endianness (native, little, big)")
	pf.Bool("keep-orientation", false, "do not apply the stored orientation")
	return cmd
}
