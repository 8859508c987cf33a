// Command llmctlctl is the headless engine-side CLI, built the way the
// teacher's cmd/cortex and cmd/chum are: flag-based argv parsing, a
// JSON-first output contract, and a fixed exit-code contract (0
// success, 1 validation/domain error, 2 compatibility-gate block).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var (
		code int
		err  error
	)
	switch os.Args[1] {
	case "migrate-flowchart-runtime-schema":
		code, err = runMigrateFlowchartRuntimeSchema(os.Args[2:])
	case "export-skill-package":
		code, err = runExportSkillPackage(os.Args[2:])
	case "import-skill-package":
		code, err = runImportSkillPackage(os.Args[2:])
	case "print-mcp-configs":
		code, err = runPrintMCPConfigs(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "llmctlctl: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		printEnvelope(false, nil, err)
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: llmctlctl <command> [flags]

commands:
  migrate-flowchart-runtime-schema   apply schema migrations and the one-shot legacy MCP config upgrade
  export-skill-package               package an Agent + bound Scripts + MCP server config into a JSON bundle
  import-skill-package --apply       import a skill package bundle (dry-run validates only, --apply writes)
  print-mcp-configs                  print parsed MCP server configs as JSON`)
}

// die mirrors the teacher's die(format, args...) helper (cmd/db-restore/
// main.go): print to stderr and exit nonzero. Used only for argv-level
// usage errors that precede any domain logic, so they always exit 1.
func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "llmctlctl: "+format+"\n", args...)
	os.Exit(1)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: llmctlctl %s [flags]\n", name)
		fs.PrintDefaults()
	}
	return fs
}

// printEnvelope writes the command's JSON result to stdout, sorted keys,
// 2-space indent. A non-nil err is folded into {"ok": false, "error":
// "..."} instead of the success payload.
func printEnvelope(ok bool, payload map[string]any, err error) {
	out := map[string]any{"ok": ok}
	if err != nil {
		out["ok"] = false
		out["error"] = err.Error()
	}
	for k, v := range payload {
		out[k] = v
	}
	b, marshalErr := json.MarshalIndent(out, "", "  ")
	if marshalErr != nil {
		fmt.Fprintf(os.Stderr, "llmctlctl: marshal output: %v\n", marshalErr)
		return
	}
	fmt.Println(string(b))
}
