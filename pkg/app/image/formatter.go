package image

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// FormatOutput formats an imaging result according to output format
func FormatOutput(w io.Writer, response *Response, format string) error {
	switch format {
	case "json":
		return formatJSON(w, response)
	case "yaml":
		return formatYAML(w, response)
	case "table":
		return formatTable(w, response)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// FormatProbe formats a geometry probe according to output format
func FormatProbe(w io.Writer, response *ProbeResponse, format string) error {
	switch format {
	case "json":
		return formatJSON(w, response)
	case "yaml":
		return formatYAML(w, response)
	case "table":
		return formatProbeTable(w, response)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// formatTable formats the run summary as a table
func formatTable(w io.Writer, r *Response) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "SESSION\t%s\n", r.SessionID)
	fmt.Fprintf(tw, "DEVICE\tdrive %d (%s)\n", r.Device.Ordinal, r.Device)
	fmt.Fprintf(tw, "GEOMETRY\t%s", r.Geometry)
	if r.OverridesApplied {
		fmt.Fprintf(tw, " (overridden)")
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "DESTINATION\t%s\n", r.Destination)
	fmt.Fprintf(tw, "LOG\t%s\n", r.LogFile)
	fmt.Fprintf(tw, "STATUS\t%s\n", r.Status)
	if r.AbortedAt != "" {
		fmt.Fprintf(tw, "NEXT UNIT\t%s\n", r.AbortedAt)
	}
	fmt.Fprintf(tw, "TRACKS\t%d (%d sector fallback)\n", r.Stats.Tracks, r.Stats.TrackFallbacks)
	fmt.Fprintf(tw, "SECTORS RETRIED\t%d (%d retries)\n", r.Stats.Retried, r.Stats.Retries)
	fmt.Fprintf(tw, "SECTORS FAILED\t%d\n", r.Stats.HardFailures)
	fmt.Fprintf(tw, "BYTES\t%s of %s\n", formatBytes(r.Stats.BytesWritten), formatBytes(r.Geometry.TotalBytes()))
	if d := r.DeviceStats; d != nil {
		fmt.Fprintf(tw, "DEVICE READS\t%d track, %d sector, %d failed, %d resets\n", d.TrackReads, d.SectorReads, d.Failures, d.Resets)
	}
	fmt.Fprintf(tw, "ELAPSED\t%v\n", r.Duration.Round(time.Millisecond))

	return tw.Flush()
}

// formatProbeTable formats the geometry readings as a table
func formatProbeTable(w io.Writer, r *ProbeResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "SOURCE\tCYLINDERS\tHEADS\tSECTORS\n")
	fmt.Fprintf(tw, "------\t---------\t-----\t-------\n")
	if r.Probe != nil {
		if r.Probe.TableErr != "" {
			fmt.Fprintf(tw, "parameter table\t-\t-\t-\n")
		} else {
			t := r.Probe.Table
			fmt.Fprintf(tw, "%s\t%d\t%d\t-\n", sourceLabel(t.Source, "parameter table"), t.Cylinders, t.Heads)
		}
		id := r.Probe.Identify
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", sourceLabel(id.Source, "identify"), id.Cylinders, id.Heads, id.SectorsPerTrack)
	}
	g := r.Geometry
	fmt.Fprintf(tw, "effective\t%d\t%d\t%d\n", g.Cylinders, g.Heads, g.SectorsPerTrack)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nDevice: drive %d (%s)\n", r.Device.Ordinal, r.Device)
	fmt.Fprintf(w, "Size: %s\n", formatBytes(r.TotalBytes))
	if r.OverridesApplied {
		fmt.Fprintln(w, "Overrides applied")
	}
	if r.Probe != nil {
		for _, warning := range r.Probe.Warnings {
			fmt.Fprintf(w, "Warning: %s\n", warning)
		}
	}
	if !r.Valid {
		fmt.Fprintln(w, "Geometry is incomplete; imaging would be refused")
	}
	return nil
}

// formatJSON formats results as JSON
func formatJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// formatYAML formats results as YAML
func formatYAML(w io.Writer, v interface{}) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(v)
}

func sourceLabel(source, fallback string) string {
	if source == "" {
		return fallback
	}
	return source
}

// formatBytes formats byte count as human readable
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
