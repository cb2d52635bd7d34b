package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"match-workers/internal/matching"

	"github.com/mitchellh/mapstructure"
)

// preferencesRow is the shape of candidate_profiles.preferences. Values are
// decoded weakly: "true"/1 are accepted for remote, numeric strings for
// salary_min, and a bare string for a list.
type preferencesRow struct {
	JobTypes  []string `mapstructure:"job_types"`
	WorkModes []string `mapstructure:"work_modes"`
	Remote    bool     `mapstructure:"remote"`
	SalaryMin int      `mapstructure:"salary_min"`
}

type skillEntry struct {
	Name  string `mapstructure:"name"`
	Skill string `mapstructure:"skill"`
}

func weakDecode(input interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// decodePreferences returns the typed preferences and the salary expectation
// carried in salary_min.
func decodePreferences(raw []byte) (matching.Preferences, int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return matching.Preferences{}, 0, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return matching.Preferences{}, 0, fmt.Errorf("preferences is not an object: %w", err)
	}

	var row preferencesRow
	if err := weakDecode(m, &row); err != nil {
		return matching.Preferences{}, 0, fmt.Errorf("preferences: %w", err)
	}

	return matching.Preferences{
		JobTypes:  row.JobTypes,
		WorkModes: row.WorkModes,
		Remote:    row.Remote,
	}, row.SalaryMin, nil
}

// decodeSkills accepts a JSON array of strings or of objects carrying a
// "name" (or "skill") key, e.g. {"name": "go", "level": "expert"}.
func decodeSkills(raw []byte) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}

	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("skills is not an array: %w", err)
	}

	out := make([]string, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]interface{}:
			var entry skillEntry
			if err := weakDecode(v, &entry); err != nil {
				return nil, fmt.Errorf("skills[%d]: %w", i, err)
			}
			name := entry.Name
			if name == "" {
				name = entry.Skill
			}
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		default:
			return nil, fmt.Errorf("skills[%d]: unsupported element %T", i, item)
		}
	}
	return out, nil
}
