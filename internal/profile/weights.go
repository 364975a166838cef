package profile

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// WeightTable assigns a quality weight to each fact key. Primary rooms carry
// full weight; supplementary attributes count half. The table is configurable
// because the weighting is a product decision, not a fixed rule.
type WeightTable struct {
	Default  float64            `yaml:"default"`
	Prefixes map[string]float64 `yaml:"prefixes"`
}

// DefaultWeights returns the built-in weight table.
func DefaultWeights() WeightTable {
	return WeightTable{
		Default: 0.5,
		Prefixes: map[string]float64{
			"kitchen":     1.0,
			"living":      1.0,
			"bedroom":     1.0,
			"bathroom":    1.0,
			"ensuite":     1.0,
			"hall":        0.5,
			"landing":     0.5,
			"utility":     0.5,
			"hotpress":    0.5,
			"wc":          0.5,
			"garden":      0.5,
			"total_floor": 1.0,
		},
	}
}

// LoadWeights reads a weight table from a YAML file, falling back to defaults
// for anything the file leaves unset.
func LoadWeights(path string) (WeightTable, error) {
	table := DefaultWeights()
	data, err := os.ReadFile(path)
	if err != nil {
		return table, eris.Wrapf(err, "read weight table %s", path)
	}
	var loaded WeightTable
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return table, eris.Wrapf(err, "parse weight table %s", path)
	}
	if loaded.Default > 0 {
		table.Default = loaded.Default
	}
	for prefix, w := range loaded.Prefixes {
		table.Prefixes[prefix] = w
	}
	return table, nil
}

// WeightFor returns the weight for a fact key. Keys are matched on their
// first dot-separated segment, with trailing digits stripped so bedroom_2
// matches the bedroom entry.
func (t WeightTable) WeightFor(key string) float64 {
	segment := key
	if i := strings.IndexByte(segment, '.'); i >= 0 {
		segment = segment[:i]
	}
	segment = strings.TrimRight(segment, "0123456789")
	segment = strings.TrimRight(segment, "_")

	if w, ok := t.Prefixes[segment]; ok {
		return w
	}
	if t.Default > 0 {
		return t.Default
	}
	return 0.5
}
