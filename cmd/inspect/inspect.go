package inspect

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"github.com/spf13/cobra"

	"github.com/tphakala/livecaption/internal/archive"
	"github.com/tphakala/livecaption/internal/errors"
)

// Command creates the command that prints an archive header.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.wav>",
		Short: "Show the header of a session archive",
		Long: "Print the RIFF header fields and duration of a float WAV archive, " +
			"and check them against an independent WAV decoder.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectFile(cmd.OutOrStdout(), args[0])
		},
	}
}

func inspectFile(w io.Writer, path string) error {
	f, err := os.Open(path) //nolint:gosec // user supplied path is the point
	if err != nil {
		return errors.New(err).
			Component("inspect").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	header, err := archive.ReadHeader(f)
	if err != nil {
		return err
	}

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "File:          %s\n", path)
	fmt.Fprintf(w, "Format:        %d (%s)\n", header.AudioFormat, formatName(header.AudioFormat))
	fmt.Fprintf(w, "Channels:      %d\n", header.Channels)
	fmt.Fprintf(w, "Sample rate:   %d Hz\n", header.SampleRate)
	fmt.Fprintf(w, "Bits:          %d\n", header.BitsPerSample)
	fmt.Fprintf(w, "RIFF size:     %d\n", header.RIFFSize)
	fmt.Fprintf(w, "Data size:     %d\n", header.DataSize)
	fmt.Fprintf(w, "Samples:       %d\n", header.Samples())
	fmt.Fprintf(w, "Duration:      %s\n", header.Duration())

	if expected := int64(archive.HeaderSize) + int64(header.DataSize); fi.Size() != expected {
		fmt.Fprintf(w, "Warning:       file is %d bytes but the header describes %d; "+
			"the recording was not finalized\n", fi.Size(), expected)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	d := wav.NewDecoder(f)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		fmt.Fprintf(w, "Decoder:       failed: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "Decoder:       format %d, %d ch, %d Hz, %d bits\n",
		d.WavAudioFormat, d.NumChans, d.SampleRate, d.BitDepth)
	return nil
}

func formatName(format uint16) string {
	switch format {
	case archive.FormatIEEEFloat:
		return "IEEE float"
	case 1:
		return "PCM"
	default:
		return "unknown"
	}
}
