package document

import (
	"math"
	"strconv"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders a byte count the way the document library lists it:
// base 1024, one decimal, trailing ".0" dropped ("0 Bytes", "1.5 KB", "2 MB").
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := float64(n) / math.Pow(1024, float64(i))
	v = math.Round(v*10) / 10
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// LiveSizeLabel renders the label given to files uploaded during a live
// meeting: megabytes with two decimals.
func LiveSizeLabel(n int64) string {
	return strconv.FormatFloat(float64(n)/1024/1024, 'f', 2, 64) + " MB"
}
