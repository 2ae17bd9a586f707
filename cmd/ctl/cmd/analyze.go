package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jpfielding/jpegxt.go/pkg/jpegxt/marker"
	"github.com/jpfielding/jpegxt.go/pkg/util"
	"github.com/spf13/cobra"
)

// NewAnalyzeCmd creates the analyze cobra command
func NewAnalyzeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the structure of a container file",
		Long:  "Lists the markers of a container file, the size of its side channels and entropy coded segments, and a zstd baseline of the whole file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath, _ := cmd.Flags().GetString("file")
			if filePath == "" && len(args) > 0 {
				filePath = args[0]
			}
			if filePath == "" {
				return fmt.Errorf("file path is required. Use --file flag or provide as argument")
			}
			return runAnalyze(filePath)
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("file", "f", "", "container file path to analyze")
	return cmd
}

var markerNames = map[int]string{
	0xffc4: "DHT",
	0xffd9: "EOI",
	0xffda: "SOS",
	0xffdc: "DNL",
	0xffe9: "APP9",
}

func markerName(m int) string {
	switch {
	case m >= 0xffd0 && m <= 0xffd7:
		return fmt.Sprintf("RST%d", m-0xffd0)
	case m >= 0xffb1 && m <= 0xffcf && m != 0xffc4 && m != 0xffc8 && m != 0xffcc:
		return "frame"
	}
	if n, ok := markerNames[m]; ok {
		return n
	}
	return "?"
}

func runAnalyze(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read error: %w", err)
	}
	fmt.Printf("File: %s (%d bytes)\n", filePath, len(data))
	fmt.Printf("Content id: %s\n\n", util.ContentID(data))
	if len(data) < 2 {
		return fmt.Errorf("no frame type")
	}

	fmt.Println("=== Markers ===")
	counts := map[string]int{}
	entropy := 0
	for pos := 0; pos+1 < len(data); {
		if data[pos] != 0xff || data[pos+1] == 0x00 || data[pos+1] == 0xff {
			// entropy coded data, stuffed bytes included
			entropy++
			pos++
			continue
		}
		m := int(data[pos])<<8 | int(data[pos+1])
		name := markerName(m)
		counts[name]++
		switch name {
		case "DHT", "APP9", "DNL":
			if pos+4 > len(data) {
				return fmt.Errorf("%s at offset %d truncated", name, pos)
			}
			length := int(data[pos+2])<<8 | int(data[pos+3])
			detail := ""
			if name == "APP9" && length >= 8 && pos+10 <= len(data) {
				detail = string(data[pos+4 : pos+10])
			}
			fmt.Printf("%6d  0x%04x %-5s length %5d %s\n", pos, m, name, length, detail)
			pos += 2 + length
		default:
			// restart markers only show up in the summary
			if !strings.HasPrefix(name, "RST") {
				fmt.Printf("%6d  0x%04x %s\n", pos, m, name)
			}
			pos += 2
		}
	}
	fmt.Println()

	fmt.Println("=== Summary ===")
	for _, name := range []string{"SOS", "DHT", "APP9", "DNL", "EOI"} {
		fmt.Printf("%-5s %d\n", name, counts[name])
	}
	rst := 0
	for i := 0; i < 8; i++ {
		rst += counts[fmt.Sprintf("RST%d", i)]
	}
	fmt.Printf("RST   %d\n", rst)
	fmt.Printf("Entropy coded bytes: %d\n", entropy)

	for _, t := range []marker.Type{marker.Refinement, marker.Residual} {
		side := sideChannelSize(data, t)
		if side > 0 {
			fmt.Printf("%s side channel: %d bytes\n", t, side)
		}
	}

	baseline, err := zstdSize(data)
	if err != nil {
		return err
	}
	fmt.Printf("zstd of the container: %d bytes\n", baseline)
	return nil
}

// sideChannelSize sums the APP9 payload of type t in the marker segments that
// follow the frame type
func sideChannelSize(data []byte, t marker.Type) int {
	end := 2
	for end+4 <= len(data) && data[end] == 0xff && data[end+1] == 0xe9 {
		end += 2 + (int(data[end+2])<<8 | int(data[end+3]))
	}
	if end > len(data) {
		return 0
	}
	m, err := marker.Collect(data[2:end], t)
	if err != nil {
		return 0
	}
	return len(m.Payload())
}
