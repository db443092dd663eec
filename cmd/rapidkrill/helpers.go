package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"

	"rapidkrill/internal/preflight"
)

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && isatty.IsTerminal(file.Fd())
}

func printPreflight(w io.Writer, results []preflight.Result) {
	color := isTerminal(w)
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		state := "FAIL"
		if r.Passed {
			state = "ok"
		}
		if color {
			if r.Passed {
				state = ansiGreen + state + ansiReset
			} else {
				state = ansiRed + state + ansiReset
			}
		}
		rows = append(rows, []string{r.Name, state, r.Detail})
	}
	fmt.Fprintln(w, renderTable([]string{"Check", "State", "Detail"}, rows))
}

func formatOptionalFloat(value *float64, precision int) string {
	if value == nil {
		return "-"
	}
	return strconv.FormatFloat(*value, 'f', precision, 64)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
