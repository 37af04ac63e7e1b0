package domain

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// ProvenanceProperty is the feature property that carries the provenance tag.
const ProvenanceProperty = "provenance"

// Provenance identifies the archive schema a feature came from.
type Provenance uint8

const (
	ProvenanceGeneric Provenance = iota
	ProvenanceNARA               // US National Archives
	ProvenanceBArch              // German Federal Archives
	ProvenanceIGN                // French national mapping agency
	ProvenanceWUR                // Wageningen University & Research
)

var provenanceNames = map[Provenance]string{
	ProvenanceGeneric: "",
	ProvenanceNARA:    "nara",
	ProvenanceBArch:   "barch",
	ProvenanceIGN:     "ign",
	ProvenanceWUR:     "wur",
}

// ParseProvenance maps a tag to a Provenance. The empty string and "generic"
// map to ProvenanceGeneric.
func ParseProvenance(s string) (Provenance, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "generic" {
		return ProvenanceGeneric, nil
	}
	for p, name := range provenanceNames {
		if name == s {
			return p, nil
		}
	}
	return ProvenanceGeneric, fmt.Errorf("unknown provenance %q", s)
}

// String returns the tag stored in feature properties; "" for generic.
func (p Provenance) String() string {
	return provenanceNames[p]
}

// Label is a human-readable archive name.
func (p Provenance) Label() string {
	switch p {
	case ProvenanceNARA:
		return "National Archives (NARA)"
	case ProvenanceBArch:
		return "Bundesarchiv"
	case ProvenanceIGN:
		return "IGN"
	case ProvenanceWUR:
		return "Wageningen University & Research"
	default:
		return ""
	}
}

func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Provenance) UnmarshalText(b []byte) error {
	v, err := ParseProvenance(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ProvenanceOf reads the provenance tag stored on a feature at normalization time.
func ProvenanceOf(f *geojson.Feature) Provenance {
	if f == nil {
		return ProvenanceGeneric
	}
	s, ok := f.Properties[ProvenanceProperty].(string)
	if !ok {
		return ProvenanceGeneric
	}
	p, err := ParseProvenance(s)
	if err != nil {
		return ProvenanceGeneric
	}
	return p
}
