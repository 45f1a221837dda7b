package extract

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/wegman-software/lidarqc-go/internal/record"
)

type lasinfoSection int

const (
	sectionHeader lasinfoSection = iota
	sectionMinMax
	sectionClasses
	sectionExtendedClasses
	sectionFlag
)

const (
	minMaxHeading        = "reporting minimum and maximum for all LAS point record entries"
	classHeading         = "histogram of classification of points:"
	extendedClassHeading = "histogram of extended classification of points:"
	wktLabel             = "WKT OGC COORDINATE SYSTEM"
	flagPrefix           = "+-> flagged as "
	flagClassPrefix      = "+--->"
)

var (
	// "   1560332  ground (2)"
	histogramLine = regexp.MustCompile(`^(\d+)\s+(.+?)\s+\((\d+)\)$`)
	// "+---> 1203 of those are high noise (18)"
	flagClassLine = regexp.MustCompile(`^\+--->\s*(\d+) of those are (.+?)\s+\((\d+)\)$`)
)

// lasinfoParser walks a lasinfo report line by line. Every field is
// independent: a line that is missing or malformed leaves only its own
// field nil.
type lasinfoParser struct {
	rec     *record.PointCloudRecord
	section lasinfoSection
	flag    *record.FlagHistogram
	wantWKT bool
}

// ParseLasinfo parses the text output of `lasinfo -cd -repair_counters`.
// It never fails; fields absent from the text are left nil.
func ParseLasinfo(text string) *record.PointCloudRecord {
	p := &lasinfoParser{rec: &record.PointCloudRecord{}}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		p.line(strings.TrimRight(sc.Text(), "\r"))
	}
	return p.rec
}

func (p *lasinfoParser) line(raw string) {
	line := strings.TrimSpace(raw)

	if p.wantWKT {
		if line != "" {
			p.rec.WKT = &line
			p.wantWKT = false
		}
		return
	}

	if line == "" {
		p.section = sectionHeader
		p.flag = nil
		return
	}

	if p.diagnostic(raw) {
		return
	}

	switch p.section {
	case sectionMinMax:
		if p.minMax(line) {
			return
		}
	case sectionClasses:
		if p.histogram(line, &p.rec.Classifications) {
			return
		}
	case sectionExtendedClasses:
		if p.histogram(line, &p.rec.ExtendedClassifications) {
			return
		}
	case sectionFlag:
		if p.flagClass(line) {
			return
		}
	}
	p.section = sectionHeader
	p.flag = nil

	switch {
	case strings.HasPrefix(line, minMaxHeading):
		p.section = sectionMinMax
		return
	case line == classHeading:
		p.section = sectionClasses
		return
	case line == extendedClassHeading:
		p.section = sectionExtendedClasses
		return
	case strings.HasPrefix(line, flagPrefix):
		p.startFlag(strings.TrimPrefix(line, flagPrefix))
		return
	}

	if p.headerCheck(line) {
		return
	}

	label, value, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	p.labelled(strings.TrimSpace(label), strings.TrimSpace(value))
}

// diagnostic collects WARNING and ERROR lines wherever they appear
func (p *lasinfoParser) diagnostic(raw string) bool {
	if i := strings.Index(raw, "WARNING: "); i >= 0 {
		p.rec.Warnings = append(p.rec.Warnings, strings.TrimSpace(raw[i+len("WARNING: "):]))
		return true
	}
	if i := strings.Index(raw, "ERROR: "); i >= 0 {
		p.rec.Errors = append(p.rec.Errors, strings.TrimSpace(raw[i+len("ERROR: "):]))
		return true
	}
	return false
}

func (p *lasinfoParser) headerCheck(line string) bool {
	t := true
	switch line {
	case "number of point records in header is correct.":
		p.rec.PointsHeaderCorrect = &t
	case "extended number of point records in header is correct.":
		p.rec.ExtendedPointsHeaderCorrect = &t
	case "number of points by return in header is correct.":
		p.rec.PointsByReturnHeaderCorrect = &t
	case "extended number of points by return in header is correct.":
		p.rec.ExtendedPointsByReturnHeaderCorrect = &t
	default:
		return false
	}
	return true
}

func (p *lasinfoParser) labelled(label, value string) {
	r := p.rec
	switch label {
	case "file source ID":
		r.FileSourceID = parseInt(value)
	case "global_encoding":
		r.GlobalEncoding = parseInt(value)
	case "version major.minor":
		major, minor, ok := strings.Cut(firstField(value), ".")
		if ok {
			r.VersionMajor = parseInt(major)
			r.VersionMinor = parseInt(minor)
		}
	case "header size":
		r.HeaderSize = parseInt(value)
	case "point data format":
		r.PointDataFormat = parseInt(value)
	case "point data record length":
		r.PointDataRecordLength = parseInt(value)
	case "number of point records":
		r.NumberOfPoints = parseInt64(value)
	case "number of points by return":
		if counts := parseInt64s(value); len(counts) >= 5 {
			r.PointsByReturn = counts[:5]
		}
	case "scale factor x y z":
		r.ScaleFactor = parseXYZ(value)
	case "offset x y z":
		r.Offset = parseXYZ(value)
	case "min x y z":
		r.HeaderMin = parseXYZ(value)
	case "max x y z":
		r.HeaderMax = parseXYZ(value)
	case "extended number of point records":
		r.ExtendedNumberOfPoints = parseInt64(value)
	case "extended number of points by return":
		if counts := parseInt64s(value); len(counts) > 0 {
			r.ExtendedPointsByReturn = counts
		}
	case wktLabel:
		if value != "" {
			r.WKT = &value
		} else {
			p.wantWKT = true
		}
	case "number of first returns":
		r.FirstReturns = parseInt64(value)
	case "number of last returns":
		r.LastReturns = parseInt64(value)
	case "covered area in square meters/kilometers":
		// "345600/0.35"
		metres, _, ok := strings.Cut(value, "/")
		if ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(metres), 64); err == nil {
				r.AreaM = &f
			}
		}
	case "point density":
		r.ReportedDensity = parseReturns(value)
	case "spacing":
		r.Spacing = parseReturns(value)
	case "overview over extended number of returns of given pulse":
		if counts := parseInt64s(value); len(counts) > 0 {
			r.PulsesByNumberOfReturns = counts
		}
	}
}

// minMax handles "name  min  max" rows. Unknown rows of the same shape
// are skipped; anything else ends the block.
func (p *lasinfoParser) minMax(line string) bool {
	f := strings.Fields(line)
	if len(f) != 3 {
		return false
	}
	name := f[0]
	r := p.rec

	if name == "gps_time" {
		lo, err1 := strconv.ParseFloat(f[1], 64)
		hi, err2 := strconv.ParseFloat(f[2], 64)
		if err1 != nil || err2 != nil {
			return false
		}
		if r.GPSTime == nil {
			r.GPSTime = &record.MinMaxFloat{Min: lo, Max: hi}
		}
		return true
	}

	lo, err1 := strconv.ParseInt(f[1], 10, 64)
	hi, err2 := strconv.ParseInt(f[2], 10, 64)
	if err1 != nil || err2 != nil {
		return false
	}
	mm := &record.MinMax{Min: lo, Max: hi}

	var dst **record.MinMax
	switch name {
	case "X":
		dst = &r.X
	case "Y":
		dst = &r.Y
	case "Z":
		dst = &r.Z
	case "intensity":
		dst = &r.Intensity
	case "return_number":
		dst = &r.ReturnNumber
	case "scan_direction_flag":
		dst = &r.ScanDirectionFlag
	case "scan_angle_rank":
		dst = &r.ScanAngleRank
	case "point_source_ID":
		dst = &r.PointSourceID
	default:
		return true
	}
	if *dst == nil {
		*dst = mm
	}
	return true
}

func (p *lasinfoParser) histogram(line string, dst *record.Histogram) bool {
	m := histogramLine.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	addClass(dst, m[1], m[2], m[3])
	return true
}

func (p *lasinfoParser) startFlag(rest string) {
	// rest is "withheld: 1203"
	name, value, ok := strings.Cut(rest, ":")
	if !ok {
		return
	}
	total := parseInt64(value)
	if total == nil {
		return
	}

	fh := &record.FlagHistogram{Total: *total, Classes: record.Histogram{}}
	switch strings.TrimSpace(name) {
	case "withheld":
		p.rec.Withheld = fh
	case "extended overlap":
		p.rec.Overlap = fh
	case "synthetic":
		p.rec.Synthetic = fh
	case "keypoints":
		p.rec.Keypoints = fh
	}
	// unknown flags still consume their breakdown lines
	p.flag = fh
	p.section = sectionFlag
}

func (p *lasinfoParser) flagClass(line string) bool {
	if !strings.HasPrefix(line, flagClassPrefix) {
		return false
	}
	if m := flagClassLine.FindStringSubmatch(line); m != nil && p.flag != nil {
		addClass(&p.flag.Classes, m[1], m[2], m[3])
	}
	return true
}

func addClass(dst *record.Histogram, count, name, code string) {
	n, err := strconv.ParseInt(count, 10, 64)
	if err != nil {
		return
	}
	id, err := strconv.Atoi(code)
	if err != nil {
		return
	}
	if *dst == nil {
		*dst = record.Histogram{}
	}
	(*dst)[id] = record.Classification{ID: id, Name: strings.TrimSpace(name), Count: n}
}

func firstField(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

func parseInt(s string) *int {
	n, err := strconv.Atoi(firstField(s))
	if err != nil {
		return nil
	}
	return &n
}

func parseInt64(s string) *int64 {
	n, err := strconv.ParseInt(firstField(s), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// parseInt64s reads leading integers up to the first non-integer token
func parseInt64s(s string) []int64 {
	var out []int64
	for _, f := range strings.Fields(s) {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			break
		}
		out = append(out, n)
	}
	return out
}

func parseXYZ(s string) *record.XYZ {
	f := strings.Fields(s)
	if len(f) < 3 {
		return nil
	}
	var v [3]float64
	for i := 0; i < 3; i++ {
		x, err := strconv.ParseFloat(f[i], 64)
		if err != nil {
			return nil
		}
		v[i] = x
	}
	return &record.XYZ{X: v[0], Y: v[1], Z: v[2]}
}

// parseReturns reads "all returns 18.88 last only 13.96 (per square meter)"
func parseReturns(s string) *record.Returns {
	f := strings.Fields(s)
	if len(f) < 6 || f[0] != "all" || f[3] != "last" {
		return nil
	}
	all, err1 := strconv.ParseFloat(f[2], 64)
	last, err2 := strconv.ParseFloat(f[5], 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &record.Returns{All: all, Last: last}
}
