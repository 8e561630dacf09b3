package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// decodeJSONArg decodes a flag value that is either inline JSON or a path
// to a JSON file. An empty value leaves v untouched.
func decodeJSONArg(name, arg string, v any) error {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil
	}

	var data []byte
	switch {
	case strings.HasPrefix(arg, "{"), strings.HasPrefix(arg, "["):
		data = []byte(arg)
	case arg == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return eris.Wrapf(err, "read --%s from stdin", name)
		}
		data = b
	default:
		b, err := os.ReadFile(arg)
		if err != nil {
			return eris.Wrapf(err, "read --%s", name)
		}
		data = b
	}

	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "decode --%s", name)
	}
	return nil
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
