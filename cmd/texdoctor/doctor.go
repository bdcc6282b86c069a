package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// doctorResult holds all diagnostic information about the toolchain.
type doctorResult struct {
	Status   string     `json:"status"` // "ready", "warnings", "errors"
	Tools    []toolInfo `json:"tools"`
	System   systemInfo `json:"system"`
	Warnings []string   `json:"warnings,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
}

// toolInfo holds detection results for one external tool.
type toolInfo struct {
	Name    string `json:"name"`
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
}

// systemInfo holds system check results.
type systemInfo struct {
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	TempWritable bool   `json:"temp_writable"`
}

// runDoctorCmd executes the doctor command and returns an exit code.
// Exit codes: 0 = OK (including warnings), 1 = errors found.
func runDoctorCmd(args []string, env *Environment) int {
	jsonOutput := false
	for _, arg := range args {
		if arg == "--json" {
			jsonOutput = true
		}
	}

	result := runDoctor()

	if jsonOutput {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == "errors" {
		return ExitGeneral
	}
	return ExitSuccess
}

// runDoctor performs all diagnostic checks.
func runDoctor() *doctorResult {
	result := &doctorResult{
		Status: "ready",
		System: systemInfo{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
		},
	}

	checkTool(result, "pandoc")
	checkTool(result, "pdflatex")
	checkSystem(result)

	if len(result.Errors) > 0 {
		result.Status = "errors"
	} else if len(result.Warnings) > 0 {
		result.Status = "warnings"
	}

	return result
}

// checkTool locates an external tool and records its version.
func checkTool(result *doctorResult, name string) {
	info := toolInfo{Name: name}
	defer func() { result.Tools = append(result.Tools, info) }()

	path, err := exec.LookPath(name)
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("%s not found on PATH; diagnosis cannot run without it", name))
		return
	}
	info.Found = true
	info.Path = path

	out, err := exec.Command(path, "--version").Output() // #nosec G204 -- path from LookPath
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s found but --version failed: %v", name, err))
		return
	}
	if line, _, _ := strings.Cut(string(out), "\n"); line != "" {
		info.Version = strings.TrimSpace(line)
	}
}

// checkSystem verifies the scratch directory location is usable.
func checkSystem(result *doctorResult) {
	probe := filepath.Join(os.TempDir(), ".texdoctor-doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("temp directory not writable: %v", err))
		return
	}
	_ = os.Remove(probe)
	result.System.TempWritable = true
}

// printDoctorResult writes the human-readable report.
func printDoctorResult(w io.Writer, result *doctorResult) {
	fmt.Fprintln(w, "texdoctor doctor")
	fmt.Fprintln(w)

	for _, tool := range result.Tools {
		if tool.Found {
			fmt.Fprintf(w, "[OK]    %s: %s", tool.Name, tool.Path)
			if tool.Version != "" {
				fmt.Fprintf(w, " (%s)", tool.Version)
			}
			fmt.Fprintln(w)
		} else {
			fmt.Fprintf(w, "[ERROR] %s: not found\n", tool.Name)
		}
	}

	if result.System.TempWritable {
		fmt.Fprintln(w, "[OK]    temp directory writable")
	} else {
		fmt.Fprintln(w, "[ERROR] temp directory not writable")
	}

	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "[WARN]  %s\n", warn)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w, "[ERROR] %s\n", e)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "status: %s\n", result.Status)
}
