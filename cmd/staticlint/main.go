// Command staticlint runs the project's static checks: analyzers from the Go
// toolchain, third-party analyzers, the project-specific noosexit analyzer and
// the staticcheck, simple and stylecheck analyzers enabled in config.json.
//
// config.json is looked up next to the binary unless STATICLINT_CONFIG points
// elsewhere. Usage:
//
//	staticlint ./...
package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/errorsas"
	"golang.org/x/tools/go/analysis/passes/httpresponse"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unreachable"
	"golang.org/x/tools/go/analysis/passes/unusedresult"
	"honnef.co/go/tools/analysis/lint"
	"honnef.co/go/tools/simple"
	"honnef.co/go/tools/staticcheck"
	"honnef.co/go/tools/stylecheck"

	"github.com/gordonklaus/ineffassign/pkg/ineffassign"
	"github.com/gostaticanalysis/nilerr"

	"github.com/patric-chuzhbe/userapi/cmd/staticlint/noosexit"
)

// Config is the name of the JSON file that lists enabled honnef.co analyzers.
const Config = `config.json`

// ConfigData describes the configuration file. Staticcheck holds analyzer
// names such as "SA1000", "S1002" or "ST1005".
type ConfigData struct {
	Staticcheck []string
}

func configPath() (string, error) {
	if path := os.Getenv("STATICLINT_CONFIG"); path != "" {
		return path, nil
	}

	appfile, err := os.Executable()
	if err != nil {
		return "", err
	}

	return filepath.Join(filepath.Dir(appfile), Config), nil
}

func main() {
	path, err := configPath()
	if err != nil {
		panic(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var cfg ConfigData
	if err = json.Unmarshal(data, &cfg); err != nil {
		panic(err)
	}

	myChecks := []*analysis.Analyzer{
		copylock.Analyzer,
		errorsas.Analyzer,
		httpresponse.Analyzer, // Response bodies used before the error check.
		loopclosure.Analyzer,
		lostcancel.Analyzer,
		printf.Analyzer,
		structtag.Analyzer,
		unmarshal.Analyzer,
		unreachable.Analyzer,
		unusedresult.Analyzer,

		ineffassign.Analyzer,
		nilerr.Analyzer,

		noosexit.Analyzer,
	}

	checks := make(map[string]bool)
	for _, v := range cfg.Staticcheck {
		checks[v] = true
	}

	for _, set := range [][]*lint.Analyzer{staticcheck.Analyzers, simple.Analyzers, stylecheck.Analyzers} {
		for _, v := range set {
			if checks[v.Analyzer.Name] {
				myChecks = append(myChecks, v.Analyzer)
			}
		}
	}

	multichecker.Main(myChecks...)
}
