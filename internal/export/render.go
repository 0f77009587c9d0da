package export

import (
	"fmt"
	"strings"
	"time"
)

// tableHeader heads the per-point rows of a rendered series.
const tableHeader = "Seconds\tNanos\tValue"

// renderName returns the "Name: <name>, type: <type>" line.
func renderName(d Descriptor) string {
	return fmt.Sprintf("Name: %s, type: %s", d.Name, d.Type)
}

// renderKeys returns the "Keys: <k1> <k2>" line.
func renderKeys(d Descriptor) string {
	return "Keys: " + strings.Join(d.LabelKeys, " ")
}

// renderSeries returns the multi-line block for one series: start time,
// label values, then one tab-separated row per point.
func renderSeries(ts TimeSeries) string {
	var b strings.Builder

	b.WriteString("Start ")
	b.WriteString(renderTimestamp(ts.Start))
	b.WriteString("\nLabel values: ")

	values := make([]string, len(ts.LabelValues))
	for i, lv := range ts.LabelValues {
		values[i] = lv.Value
	}

	b.WriteString(strings.Join(values, " "))
	b.WriteString("\n")
	b.WriteString(tableHeader)

	for _, p := range ts.Points {
		fmt.Fprintf(&b, "\n%d\t%d\t%s",
			p.Time.Unix(), p.Time.Nanosecond(), p.Value)
	}

	return b.String()
}

func renderTimestamp(t time.Time) string {
	return fmt.Sprintf("Timestamp{seconds=%d, nanos=%d}", t.Unix(), t.Nanosecond())
}
