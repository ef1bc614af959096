package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/pretty"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (want json or yaml)", format)
	}
}

// writeValue encodes v in the requested format.
func writeValue(w io.Writer, format string, v any) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}

		return enc.Close()
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}

	return writeRaw(w, data)
}

// writeRaw pretty-prints a JSON body as returned by the API.
func writeRaw(w io.Writer, raw []byte) error {
	_, err := w.Write(pretty.Pretty(raw))
	return err
}
