package stream

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tphakala/livecaption/internal/conf"
	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/session"
)

// Command creates the command that captions live audio.
func Command(settings *conf.Settings) *cobra.Command {
	var noClear bool

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Caption live microphone audio",
		Long: "Capture the microphone, show the running transcript and commit finished " +
			"sentences to the transcript log, optionally translated.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noClear {
				settings.Output.ClearScreen = false
			}
			return run(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd, settings, &noClear); err != nil {
		panic(fmt.Sprintf("error setting up stream flags: %v", err))
	}

	return cmd
}

func run(parent context.Context, settings *conf.Settings) error {
	ctx, stop := session.NotifyContext(parent)
	defer stop()

	sess, err := session.NewFromSettings(ctx, settings)
	if err != nil {
		return err
	}

	runErr := sess.Run(ctx)
	closeErr := sess.Close()
	return errors.Join(runErr, closeErr)
}

// flagKeys maps each flag to the configuration key it overrides
var flagKeys = map[string]string{
	"interval":     "recognition.interval",
	"backend":      "recognition.backend",
	"model":        "recognition.model",
	"language":     "recognition.language",
	"source":       "audio.source",
	"translate":    "translation.target",
	"min-duration": "segment.minduration",
	"save-audio":   "archive.enabled",
	"archive-path": "archive.path",
	"archive-sync": "archive.syncinterval",
	"transcript":   "output.transcript.path",
	"telemetry":    "telemetry.enabled",
	"listen":       "telemetry.listen",
}

// setupFlags configures flags specific to the stream command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings, noClear *bool) error {
	flags := cmd.Flags()
	flags.Float64VarP(&settings.Recognition.Interval, "interval", "i", viper.GetFloat64("recognition.interval"), "Seconds of new audio per recognition request")
	flags.StringVar(&settings.Recognition.Backend, "backend", viper.GetString("recognition.backend"), "Recognition backend (openai, whisper-server)")
	flags.StringVarP(&settings.Recognition.Model, "model", "m", viper.GetString("recognition.model"), "Recognition model name")
	flags.StringVarP(&settings.Recognition.Language, "language", "l", viper.GetString("recognition.language"), "Spoken language hint, empty to auto-detect")
	flags.StringVar(&settings.Audio.Source, "source", viper.GetString("audio.source"), "Capture device name or ID (\"default\", \"USB Audio\", etc.)")
	flags.StringVarP(&settings.Translation.Target, "translate", "t", viper.GetString("translation.target"), "Translate finished sentences into this language")
	flags.DurationVar(&settings.Segment.MinDuration, "min-duration", viper.GetDuration("segment.minduration"), "Shortest utterance before a sentence end commits it")
	flags.BoolVar(&settings.Archive.Enabled, "save-audio", viper.GetBool("archive.enabled"), "Record the session to a float WAV archive")
	flags.StringVar(&settings.Archive.Path, "archive-path", viper.GetString("archive.path"), "Path of the WAV archive")
	flags.DurationVar(&settings.Archive.SyncInterval, "archive-sync", viper.GetDuration("archive.syncinterval"), "How often the archive header is updated, 0 for only at exit")
	flags.StringVar(&settings.Output.Transcript.Path, "transcript", viper.GetString("output.transcript.path"), "Path of the transcript log")
	flags.BoolVar(noClear, "no-clear", false, "Print each update on a new line instead of redrawing the screen")
	flags.BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable Prometheus metrics and status endpoint")
	flags.StringVar(&settings.Telemetry.Listen, "listen", viper.GetString("telemetry.listen"), "Listen address of the telemetry endpoint")

	return bindFlags(flags)
}

func bindFlags(flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
