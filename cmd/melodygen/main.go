package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Conceptual-Machines/melodygen-api/internal/config"
	"github.com/Conceptual-Machines/melodygen-api/internal/generation"
	"github.com/Conceptual-Machines/melodygen-api/internal/harmony"
	"github.com/Conceptual-Machines/melodygen-api/internal/midi"
	"github.com/Conceptual-Machines/melodygen-api/internal/model"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func init() {
	log.SetPrefix("[melodygen] ")
}

func fail(err error) {
	if err != nil {
		log.Fatalln(err)
	}
}

func generateCmd() *cobra.Command {
	var (
		variant     string
		seedFile    string
		output      string
		count       int
		temperature float64
		tempo       int
		mode        string
		instrument  string
		randSeed    int64
		timeout     time.Duration
	)

	cmd := cobra.Command{
		Use:   "generate",
		Short: "generate a melody against the model server and write it as a MIDI file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()

			v, err := model.LookupVariant(variant)
			fail(err)
			_, err = midi.Program(instrument)
			fail(err)

			params := generation.Params{
				NumPredictions: count,
				Temperature:    temperature,
				Tempo:          float64(tempo),
				PolyphonyMode:  generation.PolyphonyMode(mode),
			}
			if cmd.Flags().Changed("seed") {
				params.RandSeed = &randSeed
			}
			if seedFile != "" {
				seq, err := midi.ReadFile(seedFile)
				fail(err)
				params.Seed = seq.Notes
			}
			fail(params.Validate())

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			predictor := model.NewTFServingPredictor(cfg.ModelServerURL, v.ModelName, cfg.ModelTimeout)
			fail(predictor.CheckAvailable(ctx))

			defaultMode, err := generation.ParsePolyphonyMode(cfg.PolyphonyMode)
			fail(err)
			gen := generation.NewGenerator(nil, cfg.MaxActiveNotes, defaultMode)

			result, err := gen.Generate(ctx, v, predictor, params)
			fail(err)
			fail(midi.WriteFile(output, result.Notes, instrument, params.Tempo))

			fmt.Printf("wrote %d notes to %s (shift %d, dropped %d)\n",
				len(result.Notes), output, result.PitchShift, result.Dropped)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&variant, "variant", model.VariantContinuous.Name, "model variant (v0, v1, v2)")
	flags.StringVar(&seedFile, "seed-file", "", "MIDI file to continue from; empty for a cold start")
	flags.StringVarP(&output, "output", "o", "output.mid", "path of the generated MIDI file")
	flags.IntVarP(&count, "num-predictions", "n", 100, "number of decoding steps")
	flags.Float64VarP(&temperature, "temperature", "t", 1.0, "sampling temperature in (0, 2]")
	flags.IntVar(&tempo, "tempo", 120, "tempo in beats per minute")
	flags.StringVar(&mode, "polyphony-mode", "", "chord_tones or harmonic_intervals")
	flags.StringVar(&instrument, "instrument", midi.DefaultInstrument, "General MIDI instrument name")
	flags.Int64Var(&randSeed, "seed", 0, "sampling seed for reproducible output")
	flags.DurationVar(&timeout, "timeout", 5*time.Minute, "overall generation timeout")

	return &cmd
}

func harmonizeCmd() *cobra.Command {
	var (
		output     string
		instrument string
		timeout    time.Duration
	)

	cmd := cobra.Command{
		Use:   "harmonize MELODY_FILE",
		Short: "add alto, tenor and bass lines under a MIDI melody",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			if cfg.HarmonizerModel == "" {
				fail(fmt.Errorf("harmonizer disabled (HARMONIZER_MODEL=off)"))
			}

			seq, err := midi.ReadFile(args[0])
			fail(err)

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			predictor := model.NewTFServingPredictor(cfg.ModelServerURL, cfg.HarmonizerModel, cfg.ModelTimeout)
			fail(predictor.CheckAvailable(ctx))

			res, err := harmony.NewHarmonizer(predictor).Harmonize(ctx, seq.Notes, seq.Tempo)
			fail(err)

			parts := make([]midi.Part, len(res.Lines))
			for i, line := range res.Lines {
				parts[i] = midi.Part{Name: line.Voice.Name, Notes: line.Notes}
			}
			fail(midi.WritePartsFile(output, parts, instrument, seq.Tempo))

			fmt.Printf("wrote %d notes in %d voices to %s\n", res.NoteCount(), len(parts), output)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "harmonized.mid", "path of the harmonized MIDI file")
	flags.StringVar(&instrument, "instrument", midi.DefaultInstrument, "General MIDI instrument name")
	flags.DurationVar(&timeout, "timeout", 5*time.Minute, "overall harmonization timeout")

	return &cmd
}

func variantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "list the built-in model variants",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMODEL\tWINDOW\tFEATURES")
			for _, v := range model.Variants() {
				features := make([]string, len(v.Features))
				for i, f := range v.Features {
					features[i] = string(f)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", v.Name, v.ModelName, v.WindowLength, strings.Join(features, ","))
			}
			fail(w.Flush())
		},
	}
}

func durationsCmd() *cobra.Command {
	var tempo float64

	cmd := cobra.Command{
		Use:   "durations",
		Short: "print the duration table for a tempo",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			table, err := generation.NewTempoTable(generation.DefaultVocabulary(), tempo)
			fail(err)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LABEL\tSECONDS")
			for _, e := range table.Entries() {
				fmt.Fprintf(w, "%s\t%.4f\n", e.Label, e.Seconds)
			}
			fail(w.Flush())
		},
	}

	cmd.Flags().Float64Var(&tempo, "tempo", 120, "tempo in beats per minute")
	return &cmd
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	root := &cobra.Command{
		Use:   "melodygen",
		Short: "offline melody generation against a TF Serving model server",
	}
	root.AddCommand(generateCmd(), harmonizeCmd(), variantsCmd(), durationsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
