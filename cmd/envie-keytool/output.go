package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	labelColor   = color.New(color.FgCyan, color.Bold)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// printField writes one aligned "label: value" line
func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", labelColor.Sprintf("%-18s", label+":"), value)
}

func printWarning(w io.Writer, message string) {
	fmt.Fprintln(w, warningColor.Sprint("! "+message))
}

// decodeKeyArg accepts standard or URL-safe base64, padded or not
func decodeKeyArg(name, value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(value); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("--%s is not valid base64", name)
}
