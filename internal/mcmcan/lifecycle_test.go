package mcmcan_test

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// typeCheck compiles body as a function over a freshly taken node and
// returns the type errors.
func typeCheck(t *testing.T, body string) []error {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	src := `package lifecycle

import "github.com/kstaniek/go-mcmcan/internal/mcmcan"

var pin mcmcan.Pin

func use(n *mcmcan.Node[mcmcan.Disconnected, mcmcan.NoTx, mcmcan.NoRx]) {
	_ = pin
` + body + `
}
`
	fset := token.NewFileSet()
	// the file name places the package in this module for import resolution
	f, err := parser.ParseFile(fset, filepath.Join(wd, "lifecycle_use.go"), src, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var errs []error
	conf := types.Config{
		Importer: importer.ForCompiler(fset, "source", nil),
		Error:    func(err error) { errs = append(errs, err) },
	}
	_, _ = conf.Check("lifecycle", fset, []*ast.File{f}, nil)
	for _, err := range errs {
		if strings.Contains(err.Error(), "could not import") {
			t.Fatalf("import failed: %v", err)
		}
	}
	return errs
}

func TestLifecycleSequencesTypeCheck(t *testing.T) {
	valid := map[string]string{
		"loopback":      `_, _ = mcmcan.Finalize(mcmcan.ConnectInternalLoopback(n))`,
		"pins":          `_, _ = mcmcan.Finalize(mcmcan.SetPins(n, pin))`,
		"pins_loopback": `_, _ = mcmcan.Finalize(mcmcan.ConnectInternalLoopback(mcmcan.SetPins(n, pin)))`,
		"loopback_pins": `_, _ = mcmcan.Finalize(mcmcan.SetPins(mcmcan.ConnectInternalLoopback(n), pin))`,
	}
	for name, body := range valid {
		if errs := typeCheck(t, body); len(errs) != 0 {
			t.Errorf("%s rejected: %v", name, errs)
		}
	}
}

func TestIllegalLifecycleSequencesDoNotCompile(t *testing.T) {
	illegal := map[string]string{
		"finalize_disconnected": `_, _ = mcmcan.Finalize(n)`,
		"pins_twice":            `_ = mcmcan.SetPins(mcmcan.SetPins(n, pin), pin)`,
		"loopback_twice":        `_ = mcmcan.ConnectInternalLoopback(mcmcan.ConnectInternalLoopback(n))`,
		"bitrate_when_running":  `r, _ := mcmcan.Finalize(mcmcan.ConnectInternalLoopback(n)); _ = r.SetBitrate`,
	}
	for name, body := range illegal {
		if errs := typeCheck(t, body); len(errs) == 0 {
			t.Errorf("%s compiled", name)
		}
	}
}
