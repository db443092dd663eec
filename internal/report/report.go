// Package report renders sealed aggregation windows into the artifacts that
// leave the ship: the email subject and body, the CSV attachment, and the
// console table shown in interactive runs.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"rapidkrill/internal/aggregator"
	"rapidkrill/internal/ledger"
)

const csvHeader = "Time,File,NASC,Latitude,Longitude,Miles,SeabedM"

// Builder renders summaries for a fixed platform name.
type Builder struct {
	platform string
	printer  *message.Printer
}

// NewBuilder returns a Builder for the named platform.
func NewBuilder(platform string) *Builder {
	return &Builder{
		platform: platform,
		printer:  message.NewPrinter(language.English),
	}
}

// Subject formats the report subject line. The platform and window end form
// a stable identity that shore-side filters key on.
func (b *Builder) Subject(summary *aggregator.Summary) string {
	return fmt.Sprintf("RapidKrill report: %s_%s",
		b.platform, summary.WindowEnd.UTC().Format(time.RFC3339))
}

// Body renders the plain-text email body.
func (b *Builder) Body(summary *aggregator.Summary) string {
	var sb strings.Builder
	sb.WriteString("RapidKrill underway report\n\n")
	fmt.Fprintf(&sb, "Platform:  %s\n", b.platform)
	fmt.Fprintf(&sb, "Window:    %s to %s\n",
		summary.WindowStart.UTC().Format(time.RFC3339),
		summary.WindowEnd.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Files:     %s\n", b.fileCounts(summary))
	if summary.Files > 0 {
		b.printer.Fprintf(&sb, "Mean NASC: %.2f m²/nmi²", summary.MeanNASC)
		if summary.Files > 1 {
			b.printer.Fprintf(&sb, " (sd %.2f)", summary.StdDevNASC)
		}
		sb.WriteString("\n")
		b.printer.Fprintf(&sb, "Distance:  %.1f nmi\n", summary.TotalMiles)
	}
	if summary.FirstFix != nil && summary.LastFix != nil {
		fmt.Fprintf(&sb, "Track:     %s to %s\n",
			formatFix(summary.FirstFix), formatFix(summary.LastFix))
	}
	return sb.String()
}

// CSV renders the per-file attachment. Missing positions and seabed depths
// stay empty rather than zero so downstream plots do not invent data.
func (b *Builder) CSV(summary *aggregator.Summary) string {
	var sb strings.Builder
	sb.WriteString(csvHeader + "\n")
	for _, row := range summary.Rows {
		fields := []string{
			row.Time.UTC().Format(time.RFC3339),
			row.File,
			strconv.FormatFloat(row.NASC, 'f', 2, 64),
			formatOptional(row.Latitude, 4),
			formatOptional(row.Longitude, 4),
			strconv.FormatFloat(row.Miles, 'f', 2, 64),
			formatOptional(row.SeabedM, 1),
		}
		sb.WriteString(strings.Join(fields, ",") + "\n")
	}
	return sb.String()
}

// Build assembles a pending ledger report for the summary.
func (b *Builder) Build(summary *aggregator.Summary, recipients []string) *ledger.Report {
	return &ledger.Report{
		ID:          uuid.NewString(),
		WindowStart: summary.WindowStart,
		WindowEnd:   summary.WindowEnd,
		Subject:     b.Subject(summary),
		Body:        b.Body(summary),
		Attachment:  b.CSV(summary),
		Recipients:  recipients,
		Status:      ledger.ReportPending,
	}
}

// AttachmentName returns the filename used for the CSV attachment.
func (b *Builder) AttachmentName(summary *aggregator.Summary) string {
	return AttachmentNameFor(b.platform, summary.WindowEnd)
}

// AttachmentNameFor derives a filesystem-safe CSV filename from the platform
// name and the window end.
func AttachmentNameFor(platform string, windowEnd time.Time) string {
	name := strings.ReplaceAll(platform, " ", "_")
	return fmt.Sprintf("%s_%s.csv", name, windowEnd.UTC().Format("20060102T150405Z"))
}

func (b *Builder) fileCounts(summary *aggregator.Summary) string {
	parts := []string{fmt.Sprintf("%d processed", summary.Files)}
	if summary.Failures > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", summary.Failures))
	}
	if summary.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", summary.Skipped))
	}
	return strings.Join(parts, ", ")
}

func formatFix(fix *aggregator.Fix) string {
	return fmt.Sprintf("%.4f,%.4f", fix.Latitude, fix.Longitude)
}

func formatOptional(value *float64, precision int) string {
	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', precision, 64)
}
