// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/texelway-trace/main.go
// Summary: Dumps recent entries from a protocol trace journal.
// Usage: texelway-trace --db trace.db [--limit N] [--client ID] [--format json|text]
// Notes: JSON output is syntax highlighted when stdout is a terminal.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/framegrace/texelway/internal/trace"
)

const defaultStyleName = "catppuccin-mocha"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "texelway-trace: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out *os.File) error {
	var (
		dbPath string
		limit  int
		client uint32
		format string
		style  string
		color  string
	)
	fs := pflag.NewFlagSet("texelway-trace", pflag.ContinueOnError)
	fs.StringVar(&dbPath, "db", "", "trace database written by texelway --trace-db")
	fs.IntVar(&limit, "limit", 100, "number of most recent entries to show")
	fs.Uint32Var(&client, "client", 0, "only show this client id")
	fs.StringVar(&format, "format", "json", "output format: json or text")
	fs.StringVar(&style, "style", defaultStyleName, "chroma style for highlighted output")
	fs.StringVar(&color, "color", "auto", "highlight output: auto, always or never")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if dbPath == "" {
		return errors.New("--db is required")
	}

	store, err := trace.OpenReadOnly(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(limit, client)
	if err != nil {
		return err
	}

	switch format {
	case "text":
		return writeText(out, entries)
	case "json":
		highlight := color == "always" || (color == "auto" && term.IsTerminal(int(out.Fd())))
		return writeJSON(out, entries, highlight, style)
	}
	return fmt.Errorf("unknown format %q", format)
}

func writeJSON(w io.Writer, entries []trace.Entry, highlight bool, styleName string) error {
	if entries == nil {
		entries = []trace.Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if !highlight {
		_, err := w.Write(data)
		return err
	}
	return highlightJSON(w, string(data), styleName)
}

func highlightJSON(w io.Writer, text, styleName string) error {
	lexer := lexers.Get("json")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	iterator, err := lexer.Tokenise(nil, text)
	if err != nil {
		return err
	}
	return formatter.Format(w, style, iterator)
}

// writeText prints one line per entry in the style of WAYLAND_DEBUG.
func writeText(w io.Writer, entries []trace.Entry) error {
	for _, e := range entries {
		arrow := "->"
		if e.Direction == trace.Event {
			arrow = "<-"
		}
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = a.Value
		}
		_, err := fmt.Fprintf(w, "[%s] client %d %s %s@%d.%s(%s)\n",
			e.Time.Format("15:04:05.000"), e.Client, arrow, e.Interface, e.Object, e.Message, strings.Join(args, ", "))
		if err != nil {
			return err
		}
	}
	return nil
}
