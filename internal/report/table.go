package report

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"rapidkrill/internal/aggregator"
)

// Table renders the window's per-file rows for interactive runs.
func Table(summary *aggregator.Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Time", "File", "NASC", "Lat", "Lon", "Miles", "Seabed m"})

	for _, row := range summary.Rows {
		tw.AppendRow(table.Row{
			row.Time.UTC().Format("15:04:05"),
			filepath.Base(row.File),
			strconv.FormatFloat(row.NASC, 'f', 2, 64),
			formatOptional(row.Latitude, 4),
			formatOptional(row.Longitude, 4),
			strconv.FormatFloat(row.Miles, 'f', 2, 64),
			formatOptional(row.SeabedM, 1),
		})
	}
	tw.AppendFooter(table.Row{
		summary.WindowEnd.UTC().Format(time.RFC3339), "",
		strconv.FormatFloat(summary.MeanNASC, 'f', 2, 64), "", "",
		strconv.FormatFloat(summary.TotalMiles, 'f', 2, 64), "",
	})

	configs := make([]table.ColumnConfig, 0, 7)
	for i := 1; i <= 7; i++ {
		align := text.AlignLeft
		if i >= 3 {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
