// Package report summarises a folder of flash frames as an Excel workbook
// and renders candidate hotspots of a run as an HTML chart.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bdougie/flashtrap/internal/exifmeta"
	"github.com/bdougie/flashtrap/internal/extractor"
)

const (
	metadataSheet = "metadata"
	countsSheet   = "counts"
	dateLayout    = "2006-01-02"
	timeLayout    = "15:04:05"
)

// Record is one photo of the report.
type Record struct {
	Filename string
	Path     string
	// Taken is zero when the photo has no EXIF timestamp.
	Taken   time.Time
	Celsius *int
}

// HasTime reports whether the capture time is known.
func (r Record) HasTime() bool {
	return !r.Taken.IsZero()
}

// Collect reads the metadata of every frame directly inside dir.
func Collect(dir string, logger *slog.Logger) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read '%s': %w", dir, err)
	}

	var records []Record
	for _, e := range entries {
		if !extractor.IsImage(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		md, err := exifmeta.Read(path)
		if err != nil {
			logger.Warn("Failed to read metadata", "file", path, "error", err)
		}
		records = append(records, Record{
			Filename: e.Name(),
			Path:     path,
			Taken:    md.Taken,
			Celsius:  md.Celsius,
		})
	}
	SortRecords(records)
	return records, nil
}

// SortRecords orders records by capture time. Records without a time go last
// in name order.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.HasTime() != b.HasTime() {
			return a.HasTime()
		}
		if !a.Taken.Equal(b.Taken) {
			return a.Taken.Before(b.Taken)
		}
		return a.Filename < b.Filename
	})
}

// DayCount is one row of the counts sheet.
type DayCount struct {
	Date  time.Time
	Count int
	// Earliest and Latest are fractions of a day, nil on days without photos.
	Earliest *float64
	Latest   *float64
	// MA7 is the trailing 7 day mean of Count.
	MA7     float64
	AvgTemp *float64
}

// Counts groups records by capture date. When start or end is set, days
// without photos in that range are included with a zero count.
func Counts(records []Record, start, end *time.Time) []DayCount {
	byDay := make(map[time.Time]*DayCount)
	temps := make(map[time.Time][]int)

	for _, r := range records {
		if !r.HasTime() {
			continue
		}
		day := truncateDay(r.Taken)
		dc, ok := byDay[day]
		if !ok {
			dc = &DayCount{Date: day}
			byDay[day] = dc
		}
		dc.Count++
		frac := dayFraction(r.Taken)
		if dc.Earliest == nil || frac < *dc.Earliest {
			dc.Earliest = &frac
		}
		if dc.Latest == nil || frac > *dc.Latest {
			v := frac
			dc.Latest = &v
		}
		if r.Celsius != nil {
			temps[day] = append(temps[day], *r.Celsius)
		}
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	if (start != nil || end != nil) && (len(days) > 0 || (start != nil && end != nil)) {
		var first, last time.Time
		if len(days) > 0 {
			first, last = days[0], days[len(days)-1]
		}
		if start != nil {
			first = truncateDay(*start)
		}
		if end != nil {
			last = truncateDay(*end)
		}
		days = days[:0]
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			days = append(days, d)
		}
	}

	out := make([]DayCount, 0, len(days))
	for _, d := range days {
		dc := DayCount{Date: d}
		if found, ok := byDay[d]; ok {
			dc = *found
		}
		if ts := temps[d]; len(ts) > 0 {
			sum := 0
			for _, t := range ts {
				sum += t
			}
			avg := float64(sum) / float64(len(ts))
			dc.AvgTemp = &avg
		}
		out = append(out, dc)
	}

	for i := range out {
		lo := max(0, i-6)
		sum := 0
		for _, dc := range out[lo : i+1] {
			sum += dc.Count
		}
		out[i].MA7 = float64(sum) / float64(i+1-lo)
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayFraction(t time.Time) float64 {
	return float64(t.Hour())/24 + float64(t.Minute())/(24*60) + float64(t.Second())/(24*3600)
}

// WriteWorkbook writes the metadata and counts sheets with their charts.
func WriteWorkbook(path string, records []Record, counts []DayCount) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", metadataSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(countsSheet); err != nil {
		return err
	}

	if err := writeMetadata(f, records); err != nil {
		return fmt.Errorf("metadata sheet: %w", err)
	}
	if err := writeCounts(f, counts); err != nil {
		return fmt.Errorf("counts sheet: %w", err)
	}
	if len(counts) > 0 {
		if err := addCharts(f, counts); err != nil {
			return fmt.Errorf("charts: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func writeMetadata(f *excelize.File, records []Record) error {
	header := []any{"filename", "date", "time", "temperature", "temperature_f"}
	if err := f.SetSheetRow(metadataSheet, "A1", &header); err != nil {
		return err
	}

	for i, r := range records {
		row := i + 2
		abs, err := filepath.Abs(r.Path)
		if err != nil {
			abs = r.Path
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetCellValue(metadataSheet, cell, r.Filename); err != nil {
			return err
		}
		if err := f.SetCellHyperLink(metadataSheet, cell, "file://"+filepath.ToSlash(abs), "External"); err != nil {
			return err
		}

		values := []any{nil, nil, nil, nil}
		if r.HasTime() {
			values[0] = r.Taken.Format(dateLayout)
			values[1] = r.Taken.Format(timeLayout)
		}
		if r.Celsius != nil {
			values[2] = *r.Celsius
			values[3] = float64(*r.Celsius)*9/5 + 32
		}
		start, _ := excelize.CoordinatesToCellName(2, row)
		if err := f.SetSheetRow(metadataSheet, start, &values); err != nil {
			return err
		}
	}
	return f.SetColWidth(metadataSheet, "A", "A", 36)
}

func writeCounts(f *excelize.File, counts []DayCount) error {
	header := []any{"date", "count", "earliest", "latest", "ma7", "avg_temp"}
	if err := f.SetSheetRow(countsSheet, "A1", &header); err != nil {
		return err
	}

	for i, dc := range counts {
		row := []any{dc.Date.Format(dateLayout), dc.Count, nil, nil, dc.MA7, nil}
		if dc.Earliest != nil {
			row[2] = *dc.Earliest
		}
		if dc.Latest != nil {
			row[3] = *dc.Latest
		}
		if dc.AvgTemp != nil {
			row[5] = *dc.AvgTemp
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(countsSheet, cell, &row); err != nil {
			return err
		}
	}

	timeFmt := "hh:mm:ss"
	style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &timeFmt})
	if err != nil {
		return err
	}
	if err := f.SetColStyle(countsSheet, "C:D", style); err != nil {
		return err
	}
	return f.SetColWidth(countsSheet, "A", "F", 12)
}

func seriesRange(col string, rows int) string {
	return fmt.Sprintf("%s!$%s$2:$%s$%d", countsSheet, col, col, rows+1)
}

func title(s string) []excelize.RichTextRun {
	return []excelize.RichTextRun{{Text: s}}
}

func addCharts(f *excelize.File, counts []DayCount) error {
	n := len(counts)
	dates := seriesRange("A", n)

	perDay := &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{
			{Name: "Photos per day", Categories: dates, Values: seriesRange("B", n)},
			{Name: "7-Day Moving Avg", Categories: dates, Values: seriesRange("E", n)},
		},
		Title: title("Pictures per Day"),
		XAxis: excelize.ChartAxis{Title: title("Date")},
		YAxis: excelize.ChartAxis{Title: title("Count")},
	}
	if err := f.AddChart(countsSheet, "H2", perDay); err != nil {
		return err
	}

	times := &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{
			{Name: "Earliest Photo Time", Categories: dates, Values: seriesRange("C", n)},
			{Name: "Latest Photo Time", Categories: dates, Values: seriesRange("D", n)},
		},
		Title: title("Earliest and Latest Photo Times"),
		XAxis: excelize.ChartAxis{Title: title("Date")},
		YAxis: excelize.ChartAxis{
			Title:  title("Time of Day"),
			NumFmt: excelize.ChartNumFmt{CustomNumFmt: "hh:mm:ss"},
		},
	}
	if err := f.AddChart(countsSheet, "H20", times); err != nil {
		return err
	}

	photos := &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{
			{Name: "Photos per Day", Categories: dates, Values: seriesRange("B", n)},
		},
		Title: title("Photos per Day and Avg Temperature"),
		XAxis: excelize.ChartAxis{Title: title("Date")},
		YAxis: excelize.ChartAxis{Title: title("Photos per Day")},
	}
	temperature := &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{
			{
				Name:       "Average Temperature",
				Categories: dates,
				Values:     seriesRange("F", n),
				Fill:       excelize.Fill{Type: "pattern", Color: []string{"FFA500"}, Pattern: 1},
			},
		},
		YAxis: excelize.ChartAxis{Secondary: true, Title: title("Avg Temperature")},
	}
	if lo, hi, ok := tempRange(counts); ok {
		temperature.YAxis.Minimum = &lo
		temperature.YAxis.Maximum = &hi
	}
	return f.AddChart(countsSheet, "H38", photos, temperature)
}

// tempRange pads the observed average temperatures by 10% for the secondary axis.
func tempRange(counts []DayCount) (float64, float64, bool) {
	var lo, hi float64
	found := false
	for _, dc := range counts {
		if dc.AvgTemp == nil {
			continue
		}
		t := *dc.AvgTemp
		if !found || t < lo {
			lo = t
		}
		if !found || t > hi {
			hi = t
		}
		found = true
	}
	return lo * 0.9, hi * 1.1, found
}
