package cmd

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/jpfielding/jpegxt.go/pkg/jpegxt/codestream"
	"github.com/jpfielding/jpegxt.go/pkg/util"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
)

// NewKindsCmd lists the scan kinds
func NewKindsCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "list the scan kinds",
		Run: func(cmd *cobra.Command, args []string) {
			for _, k := range codestream.Kinds() {
				coding := "huffman"
				if k.Arithmetic() {
					coding = "arithmetic"
				}
				fmt.Printf("%-22s %s\n", k, coding)
			}
		},
	}
}

// encode synthesizes the frame of o and returns the container and the source buffer
func encode(ctx context.Context, o *frameOptions, optimize bool) ([]byte, codestream.BufferCtrl, error) {
	f, kind, scans, err := o.plan(false)
	if err != nil {
		return nil, nil, err
	}
	src := buffer(f, kind)
	synthesize(src, f, kind, o.seed)
	out := stream.NewMemoryStream(1 << 16)
	if err := codestream.WriteContainer(out, scans, src, optimize); err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	slog.InfoContext(ctx, "encoded",
		slog.String("kind", kind.String()),
		slog.String("frame", o.id()),
		slog.Int("scans", len(scans)),
		slog.Int("bytes", out.Len()),
		slog.String("id", util.ContentID(out.Bytes())))
	return out.Bytes(), src, nil
}

// decode parses the container data of o into a fresh buffer
func decode(ctx context.Context, o *frameOptions, data []byte) (*codestream.Frame, codestream.BufferCtrl, error) {
	f, kind, scans, err := o.plan(true)
	if err != nil {
		return nil, nil, err
	}
	dst := buffer(f, kind)
	frameType, err := codestream.ReadContainer(stream.NewMemoryStreamFrom(data), scans, dst)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	slog.InfoContext(ctx, "decoded",
		slog.String("kind", kind.String()),
		slog.String("frame", o.id()),
		slog.String("type", fmt.Sprintf("0x%04x", frameType)),
		slog.Int("height", f.Height))
	return f, dst, nil
}

// NewEncodeCmd writes a synthetic frame coded with one scan kind
func NewEncodeCmd(ctx context.Context) *cobra.Command {
	o := &frameOptions{}
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "encode a synthetic frame into a container file",
		RunE: func(cmd *cobra.Command, args []string) error {
			optimize, _ := cmd.Flags().GetBool("optimize")
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				return fmt.Errorf("output path is required, use --out")
			}
			data, _, err := encode(ctx, o, optimize)
			if err != nil {
				return err
			}
			return os.WriteFile(out, data, 0644)
		},
	}
	o.bind(cmd)
	pf := cmd.PersistentFlags()
	pf.Bool("optimize", true, "optimize the Huffman tables in a measurement pass")
	pf.StringP("out", "o", "", "container file to write")
	return cmd
}

// NewDecodeCmd parses a container file and optionally checks it against the
// synthetic frame it was made from
func NewDecodeCmd(ctx context.Context) *cobra.Command {
	o := &frameOptions{}
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "decode a container file",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("in")
			verify, _ := cmd.Flags().GetBool("verify")
			if in == "" && len(args) > 0 {
				in = args[0]
			}
			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			f, dst, err := decode(ctx, o, data)
			if err != nil {
				return err
			}
			if !verify {
				return nil
			}
			kind, _ := codestream.ParseKind(o.kind)
			src := buffer(f, kind)
			synthesize(src, f, kind, o.seed)
			if err := compare(src, dst, f, kind); err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			slog.InfoContext(ctx, "verified", slog.String("kind", kind.String()))
			return nil
		},
	}
	o.bind(cmd)
	pf := cmd.PersistentFlags()
	pf.StringP("in", "i", "", "container file to read")
	pf.Bool("verify", false, "compare with the synthetic frame of the seed")
	return cmd
}

// NewRoundtripCmd encodes and decodes every requested kind in memory
func NewRoundtripCmd(ctx context.Context) *cobra.Command {
	o := &frameOptions{}
	cmd := &cobra.Command{
		Use:   "roundtrip",
		Short: "encode, decode and compare synthetic frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			optimize, _ := cmd.Flags().GetBool("optimize")
			all, _ := cmd.Flags().GetBool("all")
			kinds := []string{o.kind}
			if all {
				kinds = kinds[:0]
				for _, k := range codestream.Kinds() {
					kinds = append(kinds, k.String())
				}
			}
			failed := 0
			for _, name := range kinds {
				ko := *o
				ko.kind = name
				if err := roundtrip(ctx, &ko, optimize); err != nil {
					slog.ErrorContext(ctx, "roundtrip failed", slog.String("kind", name), slog.Any("error", err))
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d kinds failed", failed, len(kinds))
			}
			return nil
		},
	}
	o.bind(cmd)
	pf := cmd.PersistentFlags()
	pf.Bool("optimize", true, "optimize the Huffman tables in a measurement pass")
	pf.Bool("all", false, "run every scan kind")
	return cmd
}

func roundtrip(ctx context.Context, o *frameOptions, optimize bool) error {
	data, src, err := encode(ctx, o, optimize)
	if err != nil {
		return err
	}
	f, dst, err := decode(ctx, o, data)
	if err != nil {
		return err
	}
	kind, _ := codestream.ParseKind(o.kind)
	if err := compare(src, dst, f, kind); err != nil {
		return err
	}
	raw := rawCoefficients(src, f)
	baseline, err := zstdSize(raw)
	if err != nil {
		return err
	}
	fmt.Printf("%-22s %8d bytes  raw %8d  zstd %8d\n", kind, len(data), len(raw), baseline)
	return nil
}

// rawCoefficients serializes the buffer as little endian 16 bit values
func rawCoefficients(ctrl codestream.BufferCtrl, f *codestream.Frame) []byte {
	var out []byte
	switch b := ctrl.(type) {
	case *codestream.LineBuffer:
		for i := range f.Components {
			for _, line := range b.Lines(i) {
				for _, v := range line {
					out = binary.LittleEndian.AppendUint16(out, uint16(v))
				}
			}
		}
	case *codestream.BlockBuffer:
		for i := range f.Components {
			for _, rows := range [][][]codestream.Block{b.Quantized(i), b.Residual(i)} {
				for _, row := range rows {
					for _, blk := range row {
						for _, v := range blk {
							out = binary.LittleEndian.AppendUint16(out, uint16(v))
						}
					}
				}
			}
		}
	}
	return out
}

// zstdSize is the general purpose baseline the entropy coders compete with
func zstdSize(raw []byte) (int, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return 0, err
	}
	defer enc.Close()
	return len(enc.EncodeAll(raw, nil)), nil
}
