package spot

// bandEdge describes an amateur band by name and frequency range in kHz.
type bandEdge struct {
	name string
	min  float64
	max  float64
}

// HF-first: the SKCC feed is CW on HF, but the table covers everything the
// sanity range admits so an out-of-band frequency still maps to "".
var bandTable = []bandEdge{
	{"2200m", 135.7, 137.8},
	{"630m", 472, 479},
	{"160m", 1800, 2000},
	{"80m", 3500, 4000},
	{"60m", 5330, 5405},
	{"40m", 7000, 7300},
	{"30m", 10100, 10150},
	{"20m", 14000, 14350},
	{"17m", 18068, 18168},
	{"15m", 21000, 21450},
	{"12m", 24890, 24990},
	{"10m", 28000, 29700},
	{"6m", 50000, 54000},
	{"2m", 144000, 148000},
	{"1.25m", 222000, 225000},
	{"70cm", 420000, 450000},
}

// FreqToBand maps a frequency in kHz to its band label, or "" when the
// frequency falls outside every amateur allocation.
func FreqToBand(freqKHz float64) string {
	for _, b := range bandTable {
		if freqKHz >= b.min && freqKHz <= b.max {
			return b.name
		}
	}
	return ""
}
