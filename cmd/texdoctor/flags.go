package main

import (
	flag "github.com/spf13/pflag"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	verbose bool
}

// diagnoseFlags holds all flags for the diagnose command.
type diagnoseFlags struct {
	common    commonFlags
	timeout   string
	converter string
	compiler  string
	color     bool
	showTools bool
	debug     bool
	inProcess bool
}

// stageFlags holds flags for the stage command. It carries the diagnose
// overrides so the parent process can forward them to stage workers.
type stageFlags struct {
	diagnose   diagnoseFlags
	processJob bool
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show stage-level logging")
}

// addDiagnoseFlags adds diagnose flags to a FlagSet.
func addDiagnoseFlags(fs *flag.FlagSet, f *diagnoseFlags) {
	addCommonFlags(fs, &f.common)
	fs.StringVar(&f.timeout, "timeout", "", "overall run timeout (e.g. 2m)")
	fs.StringVar(&f.converter, "converter", "", "markdown-to-TeX converter executable")
	fs.StringVar(&f.compiler, "compiler", "", "TeX compiler executable")
	fs.BoolVar(&f.color, "color", false, "color the report output")
	fs.BoolVar(&f.showTools, "show-tool-output", false, "append raw tool output to the report")
	fs.BoolVar(&f.debug, "debug", false, "keep the scratch directory and dump the record per stage")
	fs.BoolVar(&f.inProcess, "in-process", false, "run stages inside this process instead of per-stage workers")
}

// addStageFlags adds stage flags to a FlagSet.
func addStageFlags(fs *flag.FlagSet, f *stageFlags) {
	addDiagnoseFlags(fs, &f.diagnose)
	fs.BoolVar(&f.processJob, "process-job", false, "read a job record on stdin and write the updated record on stdout")
}
