package psid

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Report is the content of point_source_ids.txt
type Report struct {
	Tiles []TileIDs
	// Compared is set when flightlines were supplied
	Compared bool
	Issues   []Issue
}

// WriteTo renders the report
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	printf := func(format string, args ...any) {
		c, _ := fmt.Fprintf(bw, format, args...)
		n += int64(c)
	}

	printf("Point Source ID Check\n\n")
	if r.Compared {
		if len(r.Issues) == 0 {
			printf("Point source ID's match Flightline ID's\n\n")
		}
		for _, issue := range r.Issues {
			printf("ERROR    %s: %s\nID's: %s\n\n", issue.Key, issue.Message, issue.IDs)
		}
	}

	printf("LAS Files: Point Source ID's\nNumber of Files: %d\n\n", len(r.Tiles))
	for _, t := range r.Tiles {
		printf("%s: %s\n", t.Tile, formatIDs(t.IDs))
	}
	return n, bw.Flush()
}

// WriteReport appends the report to path, creating it if needed
func WriteReport(path string, r *Report) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	if _, err := r.WriteTo(f); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}
