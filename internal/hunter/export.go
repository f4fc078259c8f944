package hunter

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// CSVHeader is the first line of every export.
const CSVHeader = "URL,TOPIC,DESCRIPTION"

// WriteCSV renders sources as CSV. Every field is double-quoted and any double
// quote inside a field is replaced by a single quote rather than escaped.
func WriteCSV(w io.Writer, sources []Source) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(CSVHeader + "\n"); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, src := range sources {
		line := csvField(src.URL) + "," + csvField(src.Topic) + "," + csvField(src.Description) + "\n"
		if _, err := bw.WriteString(line); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func csvField(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `'`) + `"`
}
