package learning

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FormatVersion is written into every model file.
const FormatVersion = 1

type modelFile struct {
	FormatVersion int              `json:"format_version"`
	Categories    []*CategoryStats `json:"categories"`
}

// legacyStats is the per-category shape of the older object-keyed format.
type legacyStats struct {
	Keywords       map[string]int `json:"keywords"`
	TotalUses      int            `json:"total_uses"`
	SuccessfulUses int            `json:"successful_uses"`
}

func encodeModel(cats []*CategoryStats) ([]byte, error) {
	return json.MarshalIndent(modelFile{FormatVersion: FormatVersion, Categories: cats}, "", "  ")
}

// decodeModel accepts the versioned list format and the older
// {"category": {...}} object format. Object key order is kept.
func decodeModel(data []byte) ([]*CategoryStats, error) {
	var probe struct {
		FormatVersion *int `json:"format_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}

	var cats []*CategoryStats
	if probe.FormatVersion != nil {
		if *probe.FormatVersion != FormatVersion {
			return nil, fmt.Errorf("unsupported model format version %d", *probe.FormatVersion)
		}
		var f modelFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decoding model: %w", err)
		}
		cats = f.Categories
	} else {
		var err error
		cats, err = decodeLegacy(data)
		if err != nil {
			return nil, fmt.Errorf("decoding legacy model: %w", err)
		}
	}

	out := cats[:0]
	for _, c := range cats {
		if c == nil || c.Name == "" {
			continue
		}
		if c.Keywords == nil {
			c.Keywords = make(map[string]int)
		}
		if c.SuccessfulUses > c.TotalUses {
			c.SuccessfulUses = c.TotalUses
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeLegacy(data []byte) ([]*CategoryStats, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var cats []*CategoryStats
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected category name, got %v", tok)
		}
		var ls legacyStats
		if err := dec.Decode(&ls); err != nil {
			return nil, fmt.Errorf("category %q: %w", name, err)
		}
		cats = append(cats, &CategoryStats{
			Name:           name,
			Keywords:       ls.Keywords,
			TotalUses:      ls.TotalUses,
			SuccessfulUses: ls.SuccessfulUses,
		})
	}
	return cats, nil
}
