// Package exifmeta reads the capture time and the camera's temperature
// reading from trail camera JPEGs.
package exifmeta

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// temperatureMarker is the (misspelled) label the cameras write into the
// MakerNote ahead of the two digit temperature in Celsius.
const temperatureMarker = "tempture"

// ErrNoTimestamp is returned when a file carries no usable capture time.
var ErrNoTimestamp = errors.New("no exif timestamp")

// Metadata is what the reports need from one photo.
type Metadata struct {
	Taken time.Time
	// Celsius is nil when the MakerNote has no temperature reading.
	Celsius *int
}

// HasTime reports whether a capture time was found.
func (m Metadata) HasTime() bool {
	return !m.Taken.IsZero()
}

// Fahrenheit converts the temperature reading.
func (m Metadata) Fahrenheit() (float64, bool) {
	if m.Celsius == nil {
		return 0, false
	}
	return float64(*m.Celsius)*9/5 + 32, true
}

// Read decodes the EXIF block of the file at path. A file without EXIF is
// not an error; the zero Metadata is returned.
func Read(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return Metadata{}, nil
	}

	var md Metadata
	if t, err := x.DateTime(); err == nil {
		// keep the wall clock the camera wrote
		md.Taken = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	}
	if tag, err := x.Get(exif.MakerNote); err == nil {
		md.Celsius = ParseTemperature(tag.Val)
	}
	return md, nil
}

// Taken returns only the capture time of the file at path.
func Taken(path string) (time.Time, error) {
	md, err := Read(path)
	if err != nil {
		return time.Time{}, err
	}
	if !md.HasTime() {
		return time.Time{}, fmt.Errorf("%s: %w", path, ErrNoTimestamp)
	}
	return md.Taken, nil
}

// ParseTemperature finds the temperature marker in a MakerNote and reads the
// two characters that follow its separator.
func ParseTemperature(makerNote []byte) *int {
	idx := bytes.Index(makerNote, []byte(temperatureMarker))
	if idx < 0 {
		return nil
	}
	start := idx + len(temperatureMarker) + 1
	if len(makerNote) < start+2 {
		return nil
	}
	v, err := strconv.Atoi(string(makerNote[start : start+2]))
	if err != nil {
		return nil
	}
	return &v
}
