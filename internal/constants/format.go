package constants

import "strings"

// ChartFormat is an output format for rendered charts.
type ChartFormat string

const (
	// ChartPNG renders raster images.
	ChartPNG ChartFormat = "png"

	// ChartSVG renders scalable vector graphics.
	ChartSVG ChartFormat = "svg"

	// ChartPDF renders single-page PDF documents.
	ChartPDF ChartFormat = "pdf"
)

// Valid returns true if the format is a recognized value.
func (f ChartFormat) Valid() bool {
	switch f {
	case ChartPNG, ChartSVG, ChartPDF:
		return true
	}
	return false
}

// String returns the string representation of the format.
func (f ChartFormat) String() string {
	return string(f)
}

// Ext returns the file extension, including the dot.
func (f ChartFormat) Ext() string {
	return "." + string(f)
}

// ParseChartFormat accepts a format name or an extension, in any case.
func ParseChartFormat(s string) (ChartFormat, bool) {
	f := ChartFormat(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	return f, f.Valid()
}
