package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintDoctorResult(t *testing.T) {
	result := &doctorResult{
		Status: "errors",
		Tools: []toolInfo{
			{Name: "pandoc", Found: true, Path: "/usr/bin/pandoc", Version: "pandoc 3.1"},
			{Name: "pdflatex", Found: false},
		},
		System: systemInfo{OS: "linux", Arch: "amd64", TempWritable: true},
		Errors: []string{"pdflatex not found on PATH; diagnosis cannot run without it"},
	}

	var out bytes.Buffer
	printDoctorResult(&out, result)
	got := out.String()

	for _, want := range []string{
		"[OK]    pandoc: /usr/bin/pandoc (pandoc 3.1)",
		"[ERROR] pdflatex: not found",
		"[OK]    temp directory writable",
		"status: errors",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
