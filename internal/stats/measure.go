package stats

import (
	"fmt"
	"regexp"
)

// Instrument names accepted by the metric SDK.
var measureNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_./-]{0,254}$`)

// Measure is a named integer quantity that can be recorded.
type Measure struct {
	Name        string
	Description string
	Unit        string
}

// NewMeasure declares an integer measure.
func NewMeasure(name, description, unit string) Measure {
	return Measure{
		Name:        name,
		Description: description,
		Unit:        unit,
	}
}

// Validate checks the measure name is usable as an instrument name.
func (m Measure) Validate() error {
	if !measureNamePattern.MatchString(m.Name) {
		return fmt.Errorf("measure name %q is not a valid instrument name", m.Name)
	}

	return nil
}
