package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// FormatOutput formats audit results according to output format
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

// formatTable formats results as a table
func formatTable(w io.Writer, response *Response) error {
	if len(response.Sessions) == 0 {
		fmt.Fprintf(w, "No sessions found in %s.\n", response.LogFile)
		return nil
	}

	for i, s := range response.Sessions {
		if i > 0 {
			fmt.Fprintln(w)
		}
		id := s.ID
		if id == "" {
			id = "(no header)"
		}
		fmt.Fprintf(w, "Session %s: %s -> %s (drive %d, CHS %s)\n", id, s.Device, s.Destination, s.Drive, s.Geometry)
		fmt.Fprintf(w, "Status: %s", s.Status)
		if s.Failure != "" {
			fmt.Fprintf(w, " (%s)", s.Failure)
		}
		fmt.Fprintln(w)
		if s.AbortedAt != "" {
			fmt.Fprintf(w, "Aborted before: %s\n", s.AbortedAt)
		}
		fmt.Fprintf(w, "Tracks: %d  Sectors: %d  Retried: %d  Unreadable: %d\n",
			s.Tracks, s.Sectors, s.Retried, s.HardFailures)

		if len(s.Units) == 0 {
			continue
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "CHS\tOUTCOME\tRETRIES\tOFFSET\tLINE\n")
		fmt.Fprintf(tw, "---\t-------\t-------\t------\t----\n")
		for _, u := range s.Units {
			offset := "-"
			if u.Offset >= 0 {
				offset = fmt.Sprintf("%d", u.Offset)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\n", u.Unit, u.Outcome, u.Retries, offset, u.Line)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// formatJSON formats results as JSON
func formatJSON(w io.Writer, response *Response) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// formatYAML formats results as YAML
func formatYAML(w io.Writer, response *Response) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(response)
}
