package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"texdoctor/internal/config"
	"texdoctor/internal/fileutil"
	"texdoctor/internal/job"
	"texdoctor/internal/pipeline"
	"texdoctor/internal/report"
	"texdoctor/internal/worker"
)

// ErrUsage marks command line misuse.
var ErrUsage = errors.New("usage error")

// run dispatches to the subcommand and returns the process exit code.
func run(args []string, env *Environment) (int, error) {
	if len(args) < 2 {
		return runDiagnose(nil, env)
	}

	switch args[1] {
	case "diagnose":
		return runDiagnose(args[2:], env)
	case "stage":
		return runStage(args[2:], env)
	case "doctor":
		return runDoctorCmd(args[2:], env), nil
	case "version":
		fmt.Fprintf(env.Stdout, "texdoctor %s\n", Version)
		return ExitSuccess, nil
	case "help", "-h", "--help":
		printHelp(env.Stdout)
		return ExitSuccess, nil
	default:
		// Bare flags mean the default diagnose command.
		if strings.HasPrefix(args[1], "-") {
			return runDiagnose(args[1:], env)
		}
		return ExitUsage, fmt.Errorf("%w: unknown command %q", ErrUsage, args[1])
	}
}

// runDiagnose reads markdown from stdin, runs the pipeline, and writes the
// report to stdout. The exit code is success whenever a report was
// produced, whatever the diagnosis says.
func runDiagnose(args []string, env *Environment) (int, error) {
	var f diagnoseFlags
	fs := flag.NewFlagSet("diagnose", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	addDiagnoseFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return exitCodeFor(err), err
	}

	cfg, err := loadDiagnoseConfig(&f)
	if err != nil {
		return exitCodeFor(err), err
	}

	markdown, err := readInput(env.Stdin)
	if err != nil {
		return exitCodeFor(err), err
	}

	log := env.logger(f.common.verbose)
	rec, err := job.NewRecord(markdown)
	if err != nil {
		return exitCodeFor(err), err
	}

	scratch, err := fileutil.NewScratchDir("texdoctor")
	if err != nil {
		return ExitGeneral, err
	}
	rec.ScratchDir = scratch
	if !cfg.Debug {
		defer os.RemoveAll(scratch)
	}

	timeout := 5 * time.Minute
	if f.timeout != "" {
		d, err := time.ParseDuration(f.timeout)
		if err != nil || d <= 0 {
			return ExitUsage, fmt.Errorf("%w: invalid --timeout %q", ErrUsage, f.timeout)
		}
		timeout = d
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	inv, err := buildStageInvoker(&f, cfg, log)
	if err != nil {
		return ExitGeneral, err
	}

	done, runErr := pipeline.NewOrchestrator(inv, log, cfg.Debug).Run(ctx, rec)
	if runErr != nil {
		if done == nil {
			done = rec
		}
		fmt.Fprint(env.Stdout, report.BuildInternalErrorReport(done, runErr))
		return exitCodeFor(runErr), runErr
	}

	fmt.Fprint(env.Stdout, done.Report)
	return ExitSuccess, nil
}

// runStage hosts one pipeline stage as a worker subprocess: job record in
// on stdin, updated record out on stdout. Any failure exits non-zero
// without writing a record.
func runStage(args []string, env *Environment) (int, error) {
	var f stageFlags
	fs := flag.NewFlagSet("stage", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	addStageFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return exitCodeFor(err), err
	}

	if fs.NArg() != 1 {
		return ExitUsage, fmt.Errorf("%w: stage needs exactly one stage name", ErrUsage)
	}
	if !f.processJob {
		return ExitUsage, fmt.Errorf("%w: stage requires %s", ErrUsage, worker.ProcessJobFlag)
	}
	name := fs.Arg(0)

	cfg, err := loadDiagnoseConfig(&f.diagnose)
	if err != nil {
		return exitCodeFor(err), err
	}

	log := env.logger(f.diagnose.common.verbose)
	reg, err := pipeline.NewDefaultRegistry(cfg, log)
	if err != nil {
		return ExitGeneral, err
	}
	h, ok := reg.Handler(name)
	if !ok {
		return ExitUsage, fmt.Errorf("%w: %s", pipeline.ErrUnknownStage, name)
	}

	serveErr := worker.Serve(env.Stdin, env.Stdout, worker.HandlerFunc(
		func(rec *job.Record) (*job.Record, error) {
			return h(context.Background(), rec)
		}))
	if serveErr != nil {
		return ExitGeneral, serveErr
	}
	return ExitSuccess, nil
}

// buildStageInvoker chooses how stages execute. By default every stage
// runs as a worker subprocess of this binary, so a stage crash cannot
// corrupt the orchestrator's memory; --in-process keeps everything in one
// process.
func buildStageInvoker(f *diagnoseFlags, cfg *config.Config, log *slog.Logger) (pipeline.StageInvoker, error) {
	if f.inProcess {
		return pipeline.NewDefaultRegistry(cfg, log)
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating stage executable: %w", err)
	}
	names := []string{job.StageMine, job.StageInvestigate, job.StageRemedy, job.StageReport}
	refs := make(map[string]worker.StageRef, len(names))
	for _, name := range names {
		refs[name] = worker.StageRef{Name: name, Path: exe, Args: stageArgs(name, f)}
	}
	return pipeline.NewSubprocessInvoker(worker.NewRunner(log), refs), nil
}

// stageArgs builds the stage subcommand argument list, forwarding the
// parent's overrides so workers resolve the same configuration.
func stageArgs(name string, f *diagnoseFlags) []string {
	args := []string{"stage", name}
	if f.common.config != "" {
		args = append(args, "--config", f.common.config)
	}
	if f.common.verbose {
		args = append(args, "--verbose")
	}
	if f.converter != "" {
		args = append(args, "--converter", f.converter)
	}
	if f.compiler != "" {
		args = append(args, "--compiler", f.compiler)
	}
	if f.color {
		args = append(args, "--color")
	}
	if f.showTools {
		args = append(args, "--show-tool-output")
	}
	if f.debug {
		args = append(args, "--debug")
	}
	return args
}

func loadDiagnoseConfig(f *diagnoseFlags) (*config.Config, error) {
	cfg, err := loadConfigOrDefault(f.common.config)
	if err != nil {
		return nil, err
	}
	if f.converter != "" {
		cfg.Tools.Converter = f.converter
	}
	if f.compiler != "" {
		cfg.Tools.Compiler = f.compiler
	}
	if f.color {
		cfg.Report.Color = true
	}
	if f.showTools {
		cfg.Report.ShowToolOutput = true
	}
	if f.debug {
		cfg.Debug = true
	}
	return cfg, nil
}

func loadConfigOrDefault(nameOrPath string) (*config.Config, error) {
	if nameOrPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(nameOrPath)
}

func readInput(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", ErrNoInput
	}
	return string(data), nil
}
