// Package main provides a CLI for formtree.
// It compiles, lints and verifies form documents and serves live forms.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/dlovans/formtree/internal/server"
	"github.com/dlovans/formtree/internal/store"
	"github.com/dlovans/formtree/pkg/form"
	"github.com/dlovans/formtree/pkg/lint"
	"github.com/dlovans/formtree/pkg/loader"
	"github.com/dlovans/formtree/pkg/schema"
)

// commands holds the flag sets of every subcommand. Each one reads its
// form document from -file.
type commands struct {
	compile        *flag.FlagSet
	compileFile    *string
	compileValues  *string
	compileEntries *bool
	compileLevel   *string

	lint     *flag.FlagSet
	lintFile *string

	verify       *flag.FlagSet
	verifyFile   *string
	verifyValues *string

	serve      *flag.FlagSet
	serveAddr  *string
	serveDB    *string
	serveFile  *string
	serveLevel *string
}

func newCommands(handling flag.ErrorHandling) *commands {
	c := &commands{
		compile: flag.NewFlagSet("compile", handling),
		lint:    flag.NewFlagSet("lint", handling),
		verify:  flag.NewFlagSet("verify", handling),
		serve:   flag.NewFlagSet("serve", handling),
	}
	c.compileFile = c.compile.String("file", "", "Form document (.json, .yaml, .cue; or JSON on stdin)")
	c.compileValues = c.compile.String("values", "", "JSON snapshot of user values to replay")
	c.compileEntries = c.compile.Bool("entries", false, "Print renderer entries instead of values")
	c.compileLevel = c.compile.String("log-level", "warn", "Log level")

	c.lintFile = c.lint.String("file", "", "Form document to lint")

	c.verifyFile = c.verify.String("file", "", "Form document")
	c.verifyValues = c.verify.String("values", "", "Submitted JSON snapshot to verify")

	c.serveAddr = c.serve.String("addr", "", "Listen address (env FORMTREE_ADDR, default :8080)")
	c.serveDB = c.serve.String("db", "", "sqlite data source (env DATABASE_URL)")
	c.serveFile = c.serve.String("file", "", "Default form document (env FORMTREE_DOCUMENT)")
	c.serveLevel = c.serve.String("log-level", "info", "Log level")
	return c
}

func main() {
	cmds := newCommands(flag.ExitOnError)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "compile":
		cmds.compile.Parse(os.Args[2:])
		setLogLevel(*cmds.compileLevel)
		handleCompile(*cmds.compileFile, *cmds.compileValues, *cmds.compileEntries)

	case "lint":
		cmds.lint.Parse(os.Args[2:])
		handleLint(*cmds.lintFile)

	case "verify":
		cmds.verify.Parse(os.Args[2:])
		handleVerify(*cmds.verifyFile, *cmds.verifyValues)

	case "serve":
		cmds.serve.Parse(os.Args[2:])
		setLogLevel(*cmds.serveLevel)
		handleServe(
			firstNonEmpty(*cmds.serveAddr, os.Getenv("FORMTREE_ADDR"), ":8080"),
			firstNonEmpty(*cmds.serveDB, os.Getenv("DATABASE_URL"), store.DefaultDSN),
			firstNonEmpty(*cmds.serveFile, os.Getenv("FORMTREE_DOCUMENT")),
		)

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("formtree - compile declarative form documents into live forms")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  formtree compile [-file form.json] [-values values.json] [-entries]")
	fmt.Println("  formtree lint [-file form.json]")
	fmt.Println("  formtree verify -file form.json -values submitted.json")
	fmt.Println("  formtree serve [-addr :8080] [-db file:formtree.db] [-file form.json]")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  formtree compile -file testdata/sample.json")
	fmt.Println("  cat form.json | formtree lint")
	fmt.Println("  formtree serve -file form.yaml -log-level debug")
}

func setLogLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(lvl)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// readDocument loads path, or JSON from stdin when path is empty.
func readDocument(path string) (*schema.Document, error) {
	if path != "" {
		return loader.Load(path)
	}
	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return loader.LoadBytes(input, loader.FormatJSON)
}

func readValues(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return values, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail("%v", err)
	}
	fmt.Println(string(out))
}

func handleCompile(filePath, valuesPath string, entries bool) {
	doc, err := readDocument(filePath)
	if err != nil {
		fail("%v", err)
	}

	values := map[string]any{}
	if valuesPath != "" {
		if values, err = readValues(valuesPath); err != nil {
			fail("%v", err)
		}
	}
	f, err := form.Replay(doc, values, form.WithLogger(logrus.StandardLogger()))
	if err != nil {
		fail("%v", err)
	}

	if entries {
		printJSON(f.Entries())
		return
	}
	printJSON(struct {
		Status form.Status            `json:"status"`
		Values map[string]any         `json:"values"`
		Errors []form.ValidationError `json:"errors,omitempty"`
	}{f.Status(), f.Value(), f.Validate()})
}

func handleLint(filePath string) {
	var (
		result *lint.Result
		err    error
	)
	if filePath == "" {
		var input []byte
		if input, err = io.ReadAll(os.Stdin); err != nil {
			fail("reading input: %v", err)
		}
		result, err = lint.Run(string(input))
	} else {
		var js []byte
		format, ferr := loader.FormatOf(filePath)
		if ferr != nil {
			fail("%v", ferr)
		}
		data, rerr := os.ReadFile(filePath)
		if rerr != nil {
			fail("%v", rerr)
		}
		if js, err = loader.ToJSON(data, format); err == nil {
			result, err = lint.Run(string(js))
		}
	}
	if err != nil {
		fail("lint: %v", err)
	}

	if len(result.Issues) == 0 {
		fmt.Println("✓ No issues found")
		return
	}

	for _, issue := range result.Issues {
		icon := "⚠"
		switch issue.Severity {
		case "error":
			icon = "✗"
		case "info":
			icon = "ℹ"
		}
		location := ""
		if issue.Path != "" {
			location = " " + issue.Path
		}
		if issue.Field != "" {
			location += fmt.Sprintf(" [field: %s]", issue.Field)
		}
		fmt.Printf("%s %s%s: %s\n", icon, issue.Severity, location, issue.Message)
	}

	if !result.Valid {
		os.Exit(1)
	}
}

func handleVerify(docPath, valuesPath string) {
	if docPath == "" || valuesPath == "" {
		fail("both -file and -values are required")
	}
	doc, err := loader.Load(docPath)
	if err != nil {
		fail("%v", err)
	}
	values, err := readValues(valuesPath)
	if err != nil {
		fail("%v", err)
	}
	if err := form.Verify(doc, values); err != nil {
		fmt.Fprintf(os.Stderr, "Verification failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Snapshot verified: derived values match the form")
}

func handleServe(addr, dsn, docPath string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logrus.StandardLogger()

	var doc *schema.Document
	if docPath != "" {
		var err error
		if doc, err = loader.Load(docPath); err != nil {
			log.WithError(err).Fatal("loading document")
		}
		if err := form.Check(doc); err != nil {
			log.WithError(err).Fatal("compiling document")
		}
	}

	st, err := store.Open(ctx, dsn)
	if err != nil {
		log.WithError(err).Fatal("opening store")
	}
	defer st.Close()

	srv := server.New(server.Config{
		Addr:        addr,
		Document:    doc,
		Submissions: st,
		Log:         log,
	})
	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
