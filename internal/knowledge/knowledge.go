// Package knowledge loads the school's structured data (FAQs, fees, term
// dates, transport fares and business info) and answers lookups against it.
package knowledge

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Knowledge is an immutable snapshot of the school data file.
type Knowledge struct {
	Business   Business          `yaml:"business"`
	FAQs       []FAQ             `yaml:"faqs"`
	Fees       FeeTable          `yaml:"fees"`
	Activities map[string]string `yaml:"activities"`
	Transport  []Fare            `yaml:"transport"`
}

// Business is the free-form school profile used for the assistant prompt.
type Business struct {
	SchoolName   string            `yaml:"school_name"`
	Location     string            `yaml:"location"`
	OpeningHours string            `yaml:"opening_hours"`
	Contact      map[string]string `yaml:"contact"`
	Email        string            `yaml:"email"`
	Website      string            `yaml:"website"`
	Academics    map[string]string `yaml:"academics"`
	CoCurricular map[string]string `yaml:"co_curricular"`
	Services     map[string]string `yaml:"services"`
}

// FAQ is one question and its canned answer.
type FAQ struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// Fee is one row of the fee table.
type Fee struct {
	Class  string `yaml:"class"`
	Amount string `yaml:"amount"`
}

// FeeTable keeps fees in the order they were authored.
type FeeTable []Fee

// UnmarshalYAML accepts either a mapping ("Grade 4": 15000) or a list of
// {class, amount} entries. Mapping order is preserved.
func (t *FeeTable) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		fees := make(FeeTable, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if value.Kind != yaml.ScalarNode {
				return fmt.Errorf("fee for %q must be a scalar, line %d", key.Value, value.Line)
			}
			fees = append(fees, Fee{Class: key.Value, Amount: value.Value})
		}
		*t = fees
		return nil
	case yaml.SequenceNode:
		var fees []Fee
		if err := node.Decode(&fees); err != nil {
			return err
		}
		*t = fees
		return nil
	case 0:
		*t = nil
		return nil
	default:
		return fmt.Errorf("fees must be a mapping or a list, line %d", node.Line)
	}
}

// Fare is a transport route with the stops it serves.
type Fare struct {
	Route  string   `yaml:"route"`
	Stops  []string `yaml:"stops"`
	Amount string   `yaml:"amount"`
}

// Parse decodes a school data document. YAML is a superset of JSON, so the
// dashboard's JSON files parse too.
func Parse(data []byte) (*Knowledge, error) {
	k := &Knowledge{}
	if err := yaml.Unmarshal(data, k); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge file: %w", err)
	}
	return k, nil
}
