package constants

import "testing"

func TestChartFormat_Valid(t *testing.T) {
	tests := []struct {
		name   string
		format ChartFormat
		want   bool
	}{
		{
			name:   "png is valid",
			format: ChartPNG,
			want:   true,
		},
		{
			name:   "svg is valid",
			format: ChartSVG,
			want:   true,
		},
		{
			name:   "pdf is valid",
			format: ChartPDF,
			want:   true,
		},
		{
			name:   "empty string is invalid",
			format: ChartFormat(""),
			want:   false,
		},
		{
			name:   "arbitrary string is invalid",
			format: ChartFormat("xlsx"),
			want:   false,
		},
		{
			name:   "PNG uppercase is invalid",
			format: ChartFormat("PNG"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.Valid(); got != tt.want {
				t.Errorf("ChartFormat(%q).Valid() = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}

func TestParseChartFormat(t *testing.T) {
	tests := []struct {
		in     string
		want   ChartFormat
		wantOK bool
	}{
		{"png", ChartPNG, true},
		{".SVG", ChartSVG, true},
		{" pdf ", ChartPDF, true},
		{"gif", ChartFormat("gif"), false},
	}
	for _, tt := range tests {
		got, ok := ParseChartFormat(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseChartFormat(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestChartFormat_Ext(t *testing.T) {
	if got := ChartSVG.Ext(); got != ".svg" {
		t.Errorf("Ext() = %q, want .svg", got)
	}
	if got := ChartPDF.String(); got != "pdf" {
		t.Errorf("String() = %q, want pdf", got)
	}
}
