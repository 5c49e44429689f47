package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"github.com/tarekziade/onnx-native/internal/config"
	"github.com/tarekziade/onnx-native/internal/inference"
	"github.com/tarekziade/onnx-native/internal/logging"
	"github.com/tarekziade/onnx-native/internal/onnx"
	"github.com/tarekziade/onnx-native/internal/payload"
)

// defaultIDs are the DistilBERT token ids of "I think this is wonderful".
const defaultIDs = "101,1045,2228,2023,2003,6919,102"

// env is the state shared by every command.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	closer io.Closer
}

// commonFlags registers the flags every command accepts.
type commonFlags struct {
	configPath string
	logLevel   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file")
	fs.StringVar(&c.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func (c *commonFlags) load() (*env, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, closer: closer}, nil
}

func (e *env) rehydrateOptions() []payload.Option {
	opts := []payload.Option{
		payload.WithMmap(e.cfg.Rehydrate.Mmap),
		payload.WithLogger(e.logger),
	}
	if e.cfg.Rehydrate.Workers > 0 {
		opts = append(opts, payload.WithWorkers(e.cfg.Rehydrate.Workers))
	}
	return opts
}

// parse parses args and requires exactly want positional arguments.
func parse(fs *flag.FlagSet, args []string, want int, usage string) ([]string, error) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: onnx-native %s %s\n", fs.Name(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != want {
		fs.Usage()
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", fs.Name(), want, fs.NArg())
	}
	return fs.Args(), nil
}

func cmdSplit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("split", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	threshold := fs.Int64("threshold", -1, "minimum payload size to externalize (default from config: 1024)")
	location := fs.String("location", "", "weight file name, relative to the graph (default from config: weights.data)")

	pos, err := parse(fs, args, 2, "[flags] <model.onnx> <graph.onnx>")
	if err != nil {
		return err
	}
	e, err := common.load()
	if err != nil {
		return err
	}
	defer e.closer.Close()

	if *threshold >= 0 {
		e.cfg.Split.Threshold = *threshold
	}
	if *location != "" {
		e.cfg.Split.Location = *location
	}

	opts := append(e.rehydrateOptions(),
		payload.WithThreshold(e.cfg.Split.Threshold),
		payload.WithLocation(e.cfg.Split.Location),
	)
	res, err := payload.SplitFile(pos[0], pos[1], opts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "graph:   %s\n", pos[1])
	fmt.Fprintf(stdout, "weights: %s (%d bytes)\n",
		filepath.Join(filepath.Dir(pos[1]), e.cfg.Split.Location), res.StoreBytes)
	fmt.Fprintf(stdout, "externalized %d tensor(s), kept %d inline (%d bytes)\n",
		len(res.Externalized), res.InlineCount, res.InlineBytes)
	return nil
}

func cmdRehydrate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("rehydrate", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	baseDir := fs.String("base-dir", "", "directory weight locations resolve against (default: the graph's directory)")

	pos, err := parse(fs, args, 2, "[flags] <graph.onnx> <model.onnx>")
	if err != nil {
		return err
	}
	e, err := common.load()
	if err != nil {
		return err
	}
	defer e.closer.Close()

	opts := append(e.rehydrateOptions(), payload.WithBaseDir(*baseDir))
	model, err := payload.RehydrateFile(pos[0], opts...)
	if err != nil {
		return err
	}
	if err := onnx.WriteFile(pos[1], model); err != nil {
		return err
	}

	info := onnx.Info(model)
	fmt.Fprintf(stdout, "wrote %s: %d initializer(s), %d bytes inline\n", pos[1], info.WeightCount, info.InlineBytes)
	return nil
}

type inspectReport struct {
	Info   *onnx.ModelInfo        `json:"info"`
	Layout []payload.TensorLayout `json:"layout"`
	Stores []payload.StoreDigest  `json:"stores,omitempty"`
	Valid  bool                   `json:"valid"`
	Error  string                 `json:"error,omitempty"`
}

func cmdInspect(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	check := fs.Bool("check", true, "validate external ranges against the weight files")

	pos, err := parse(fs, args, 1, "[flags] <graph.onnx>")
	if err != nil {
		return err
	}
	e, err := common.load()
	if err != nil {
		return err
	}
	defer e.closer.Close()

	model, err := onnx.ParseFile(pos[0])
	if err != nil {
		return err
	}

	report := inspectReport{
		Info:   onnx.Info(model),
		Layout: payload.Layout(model),
		Valid:  true,
	}
	if *check {
		dir := filepath.Dir(pos[0])
		if err := payload.ValidateLayout(model, dir); err != nil {
			report.Valid = false
			report.Error = err.Error()
		} else if report.Stores, err = payload.StoreDigests(model, dir); err != nil {
			return err
		}
	}

	out, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(out))
	return err
}

func cmdVerify(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)

	pos, err := parse(fs, args, 2, "[flags] <model.onnx> <graph.onnx>")
	if err != nil {
		return err
	}
	e, err := common.load()
	if err != nil {
		return err
	}
	defer e.closer.Close()

	original, err := onnx.ParseFile(pos[0])
	if err != nil {
		return err
	}
	rehydrated, err := payload.RehydrateFile(pos[1], e.rehydrateOptions()...)
	if err != nil {
		return err
	}

	report, err := payload.Verify(original, rehydrated)
	for _, m := range report.Mismatches {
		fmt.Fprintf(stdout, "MISMATCH %s: %s\n", m.Tensor, m.Reason)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "OK: %d initializer(s) match\n", report.Checked)
	return nil
}

func cmdRun(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	idsFlag := fs.String("ids", defaultIDs, "comma-separated input token ids")
	library := fs.String("library", "", "onnxruntime shared library (default from config or "+inference.LibraryPathEnv+")")

	pos, err := parse(fs, args, 1, "[flags] <graph.onnx>")
	if err != nil {
		return err
	}
	e, err := common.load()
	if err != nil {
		return err
	}
	defer e.closer.Close()

	ids, err := parseIDs(*idsFlag)
	if err != nil {
		return err
	}

	blob, err := payload.RehydrateToBytes(pos[0], e.rehydrateOptions()...)
	if err != nil {
		return err
	}

	libraryPath := e.cfg.Runtime.LibraryPath
	if *library != "" {
		libraryPath = *library
	}
	rt := inference.New(inference.Options{
		LibraryPath:    libraryPath,
		Optimization:   e.cfg.Runtime.Optimization,
		IntraOpThreads: e.cfg.Runtime.IntraOpThreads,
		Logger:         e.logger,
	})
	defer rt.Close()

	session, err := rt.NewSession(blob)
	if err != nil {
		return err
	}
	defer session.Destroy()

	fmt.Fprintf(stdout, "inputs:  %s\n", strings.Join(session.InputNames(), ", "))
	fmt.Fprintf(stdout, "outputs: %s\n", strings.Join(session.OutputNames(), ", "))

	outputs, err := session.Run(inference.TokenInputs(ids))
	if err != nil {
		return err
	}
	if len(outputs) == 0 {
		return errors.New("model produced no outputs")
	}

	logits := outputs[0].Data
	label, err := inference.Classify(logits)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "logits: NEG=%g POS=%g\n", logits[0], logits[1])
	fmt.Fprintf(stdout, "sentiment: %s\n", label)
	return nil
}

func parseIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("no token ids")
	}
	return ids, nil
}
