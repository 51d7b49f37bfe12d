package vessel

import (
	"embed"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed codes/*.yaml
var codeFS embed.FS

const (
	unknownCountry = "ZZ"
	unknownType    = "Unknown Type"
)

// Codes holds the lookup tables used for display names.
type Codes struct {
	Countries map[int]string // MID -> ISO 3166-1 alpha-2
	ShipTypes map[int]string
	Statuses  map[int]string
}

// LoadCodes decodes the embedded code tables.
func LoadCodes() (*Codes, error) {
	c := &Codes{}
	tables := []struct {
		file string
		dst  *map[int]string
	}{
		{"codes/mid.yaml", &c.Countries},
		{"codes/shiptype.yaml", &c.ShipTypes},
		{"codes/status.yaml", &c.Statuses},
	}
	for _, t := range tables {
		raw, err := codeFS.ReadFile(t.file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", t.file, err)
		}
		if err := yaml.Unmarshal(raw, t.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t.file, err)
		}
	}
	return c, nil
}

func mustLoadCodes() *Codes {
	c, err := LoadCodes()
	if err != nil {
		panic(err)
	}
	return c
}

// Country returns the ISO country code for the MMSI's MID, "ZZ" when unknown.
func (c *Codes) Country(mmsi uint32) string {
	s := strconv.FormatUint(uint64(mmsi), 10)
	if len(s) < 3 {
		return unknownCountry
	}
	mid, _ := strconv.Atoi(s[:3])
	if iso, ok := c.Countries[mid]; ok {
		return iso
	}
	return unknownCountry
}

// FlagEmoji renders a two-letter country code as regional indicator symbols.
func FlagEmoji(iso string) string {
	if len(iso) != 2 {
		iso = unknownCountry
	}
	out := make([]rune, 0, 2)
	for _, ch := range iso {
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		if ch < 'A' || ch > 'Z' {
			return FlagEmoji(unknownCountry)
		}
		out = append(out, 0x1F1E6+(ch-'A'))
	}
	return string(out)
}
