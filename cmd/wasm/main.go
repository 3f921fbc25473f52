//go:build js && wasm

// Package main provides WASM bindings for formtree.
// This allows forms to be compiled and linted in the browser.
package main

import (
	"syscall/js"

	"github.com/goccy/go-json"

	"github.com/dlovans/formtree/pkg/form"
	"github.com/dlovans/formtree/pkg/lint"
	"github.com/dlovans/formtree/pkg/schema"
)

func main() {
	js.Global().Set("FormCompile", js.FuncOf(formCompile))
	js.Global().Set("FormLint", js.FuncOf(formLint))

	// Keep the Go runtime alive
	select {}
}

// formCompile replays values against a document.
// Usage: FormCompile(docJson, valuesJson?) -> { result: {status, values, entries, errors}, error?: string }
func formCompile(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return makeError("FormCompile requires a document")
	}
	doc, err := schema.Decode([]byte(args[0].String()))
	if err != nil {
		return makeError(err.Error())
	}
	values := map[string]any{}
	if len(args) > 1 && args[1].Type() == js.TypeString && args[1].String() != "" {
		if err := json.Unmarshal([]byte(args[1].String()), &values); err != nil {
			return makeError("invalid values: " + err.Error())
		}
	}

	f, err := form.Replay(doc, values)
	if err != nil {
		return makeError(err.Error())
	}
	return makeResult(map[string]any{
		"status":  f.Status(),
		"values":  f.Value(),
		"entries": f.Entries(),
		"errors":  f.Validate(),
	})
}

// formLint is the JS-callable wrapper for lint.Run.
// Usage: FormLint(docJson) -> { result: {valid, issues}, error?: string }
func formLint(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return makeError("FormLint requires a document")
	}
	result, err := lint.Run(args[0].String())
	if err != nil {
		return makeError(err.Error())
	}
	return makeResult(result)
}

// makeError creates a JS-friendly error response
func makeError(msg string) map[string]any {
	return map[string]any{
		"error": msg,
	}
}

// makeResult round-trips v through JSON so that js.ValueOf accepts it.
func makeResult(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return makeError(err.Error())
	}
	var result any
	if err := json.Unmarshal(b, &result); err != nil {
		return map[string]any{
			"result": string(b),
		}
	}
	return map[string]any{
		"result": result,
	}
}
