package main

import (
	"encoding/json"
	"fmt"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// formatJSON renders any response as indented JSON.
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// printJSONOrHuman prints JSON when requested, otherwise calls the supplied
// human renderer.
func printJSONOrHuman(format string, resp interface{}, human func()) error {
	if OutputFormat(format) == FormatJSON {
		out, err := formatJSON(resp)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	human()
	return nil
}
