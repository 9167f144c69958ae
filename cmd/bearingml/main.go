// Command bearingml runs the bearing anomaly-detection pipeline: aggregate
// raw vibration snapshots, train the autoencoder on a healthy window, and
// score the full series against a fixed threshold.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hed1ad/bearingml/pkg/dataset"
	"github.com/hed1ad/bearingml/pkg/detectors"
	"github.com/hed1ad/bearingml/pkg/detectors/lstmae"
	"github.com/hed1ad/bearingml/pkg/scale"
	"github.com/hed1ad/bearingml/pkg/tensor"
)

const boundaryLayout = "2006-01-02 15:04:05"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Falling back to OS environment variables.")
	}

	root := &cobra.Command{
		Use:           "bearingml",
		Short:         "Bearing failure detection from vibration time series",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(aggregateCmd(), trainCmd(), scoreCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func aggregateCmd() *cobra.Command {
	var (
		input  string
		output string
		layout string
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Reduce a directory of raw snapshot files to one row per file",
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := dataset.Aggregate(input, dataset.WithLayout(layout))
			if err != nil {
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := series.WriteCSV(f); err != nil {
				return err
			}

			log.Printf("aggregated %d snapshots (%d channels) into %s",
				series.Len(), len(series.Channels), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", envDefault("BEARINGML_INPUT", ""), "snapshot directory")
	cmd.Flags().StringVar(&output, "output", envDefault("BEARINGML_SERIES", "series.csv"), "series CSV path")
	cmd.Flags().StringVar(&layout, "layout", envDefault("BEARINGML_LAYOUT", dataset.DefaultLayout), "filename timestamp layout")
	cmd.MarkFlagRequired("input")
	return cmd
}

func trainCmd() *cobra.Command {
	var (
		seriesPath string
		boundary   string
		scalerPath string
		modelPath  string
		epochs     int
		batch      int
		valSplit   float64
		lr         float64
		l2         float64
		seed       int64
	)

	def := detectors.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the scaler and autoencoder on the healthy window",
		RunE: func(cmd *cobra.Command, args []string) error {
			train, _, err := loadWindows(seriesPath, boundary)
			if err != nil {
				return err
			}

			scaler := scale.NewMinMaxScaler()
			if err := scaler.Fit(train); err != nil {
				return err
			}
			scaled, err := scaler.Transform(train)
			if err != nil {
				return err
			}
			x, err := tensor.FromMatrix(scaled.Values)
			if err != nil {
				return err
			}

			model := lstmae.New(len(train.Channels),
				lstmae.WithEpochs(epochs),
				lstmae.WithBatchSize(batch),
				lstmae.WithValidationSplit(valSplit),
				lstmae.WithLearningRate(lr),
				lstmae.WithL2(l2),
				lstmae.WithSeed(seed),
			)

			runID := uuid.New()
			log.Printf("run %s: training on %d samples, %d epochs", runID, x.N, epochs)
			hist, err := model.Fit(x)
			if err != nil {
				return err
			}
			log.Printf("run %s: final loss %.6f", runID, hist.FinalLoss())
			if n := len(hist.ValLoss); n > 0 {
				log.Printf("run %s: final val loss %.6f", runID, hist.ValLoss[n-1])
			}

			if err := saveScaler(scaler, scalerPath); err != nil {
				return err
			}
			blob, err := model.Save()
			if err != nil {
				return err
			}
			if err := os.WriteFile(modelPath, blob, 0o644); err != nil {
				return err
			}
			log.Printf("run %s: wrote %s and %s", runID, scalerPath, modelPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&seriesPath, "series", envDefault("BEARINGML_SERIES", "series.csv"), "aggregated series CSV")
	cmd.Flags().StringVar(&boundary, "boundary", envDefault("BEARINGML_BOUNDARY", ""), "healthy/degrading boundary timestamp")
	cmd.Flags().StringVar(&scalerPath, "scaler", envDefault("BEARINGML_SCALER", "scaler.json"), "fitted scaler output path")
	cmd.Flags().StringVar(&modelPath, "model", envDefault("BEARINGML_MODEL", "model.bin"), "trained model output path")
	cmd.Flags().IntVar(&epochs, "epochs", def.Epochs, "training epochs")
	cmd.Flags().IntVar(&batch, "batch", def.BatchSize, "batch size")
	cmd.Flags().Float64Var(&valSplit, "validation", def.ValidationSplit, "validation fraction")
	cmd.Flags().Float64Var(&lr, "lr", def.LearningRate, "learning rate")
	cmd.Flags().Float64Var(&l2, "l2", 0, "L2 penalty on the first encoder kernel")
	cmd.Flags().Int64Var(&seed, "seed", def.RandomSeed, "random seed")
	cmd.MarkFlagRequired("boundary")
	return cmd
}

func scoreCmd() *cobra.Command {
	var (
		seriesPath string
		boundary   string
		scalerPath string
		modelPath  string
		threshold  float64
		output     string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score both windows against the anomaly threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("threshold") && os.Getenv("BEARINGML_THRESHOLD") == "" {
				return fmt.Errorf("--threshold is required: pick it from the training loss distribution")
			}

			train, test, err := loadWindows(seriesPath, boundary)
			if err != nil {
				return err
			}

			scaler := scale.NewMinMaxScaler()
			sf, err := os.Open(scalerPath)
			if err != nil {
				return err
			}
			err = scaler.Load(sf)
			sf.Close()
			if err != nil {
				return err
			}

			blob, err := os.ReadFile(modelPath)
			if err != nil {
				return err
			}
			model := lstmae.New(len(train.Channels))
			if err := model.Load(blob); err != nil {
				return err
			}

			trainScores, err := scoreWindow(model, scaler, train, threshold)
			if err != nil {
				return err
			}
			testScores, err := scoreWindow(model, scaler, test, threshold)
			if err != nil {
				return err
			}
			combined := detectors.Combine(trainScores, testScores)

			if err := writeScores(combined, output); err != nil {
				return err
			}
			log.Printf("scored %d samples, %d anomalies (threshold %g), wrote %s",
				len(combined), detectors.CountAnomalies(combined), threshold, output)
			return nil
		},
	}

	cmd.Flags().StringVar(&seriesPath, "series", envDefault("BEARINGML_SERIES", "series.csv"), "aggregated series CSV")
	cmd.Flags().StringVar(&boundary, "boundary", envDefault("BEARINGML_BOUNDARY", ""), "healthy/degrading boundary timestamp")
	cmd.Flags().StringVar(&scalerPath, "scaler", envDefault("BEARINGML_SCALER", "scaler.json"), "fitted scaler path")
	cmd.Flags().StringVar(&modelPath, "model", envDefault("BEARINGML_MODEL", "model.bin"), "trained model path")
	cmd.Flags().Float64Var(&threshold, "threshold", envFloat("BEARINGML_THRESHOLD", 0), "anomaly loss threshold")
	cmd.Flags().StringVar(&output, "output", envDefault("BEARINGML_SCORES", "scores.csv"), "score CSV output path")
	cmd.MarkFlagRequired("boundary")
	return cmd
}

// scoreWindow scales, reshapes, reconstructs, and thresholds one window.
func scoreWindow(model *lstmae.Autoencoder, scaler *scale.MinMaxScaler, w *dataset.Series, threshold float64) ([]detectors.Score, error) {
	scaled, err := scaler.Transform(w)
	if err != nil {
		return nil, err
	}
	x, err := tensor.FromMatrix(scaled.Values)
	if err != nil {
		return nil, err
	}
	xhat, err := model.Predict(x)
	if err != nil {
		return nil, err
	}
	return detectors.Evaluate(w.Index, x, xhat, threshold)
}

func loadWindows(path, boundary string) (train, test *dataset.Series, err error) {
	b, err := time.Parse(boundaryLayout, boundary)
	if err != nil {
		return nil, nil, fmt.Errorf("bad boundary %q: want layout %s", boundary, boundaryLayout)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	series, err := dataset.ReadCSV(f)
	if err != nil {
		return nil, nil, err
	}
	return series.Split(b)
}

func saveScaler(scaler *scale.MinMaxScaler, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return scaler.Save(f)
}

func writeScores(scores []detectors.Score, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, "timestamp,loss,threshold,anomaly"); err != nil {
		return err
	}
	for _, s := range scores {
		_, err := fmt.Fprintf(f, "%s,%g,%g,%t\n",
			s.Timestamp.Format(boundaryLayout), s.Loss, s.Threshold, s.IsAnomaly)
		if err != nil {
			return err
		}
	}
	return nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("Environment variable %s is not a number: %q", key, v)
	}
	return f
}
