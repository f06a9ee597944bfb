package model

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// Variable is a single template placeholder binding. Order matters: WhatsApp
// templates substitute positionally, so variables are stored as an array
// rather than a map.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Variables is an ordered list of template placeholder bindings.
type Variables []Variable

// JSON serializes the variables for jsonb storage.
func (v Variables) JSON() datatypes.JSON {
	if len(v) == 0 {
		return datatypes.JSON("[]")
	}
	bytes, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(bytes)
}

// VariablesFromJSON decodes a stored jsonb value back into ordered variables.
func VariablesFromJSON(data datatypes.JSON) (Variables, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v Variables
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode variables: %w", err)
	}
	return v, nil
}

// Get returns the value bound to name and whether it was present.
func (v Variables) Get(name string) (string, bool) {
	for _, item := range v {
		if item.Name == name {
			return item.Value, true
		}
	}
	return "", false
}

// Values returns the variable values in declaration order.
func (v Variables) Values() []string {
	out := make([]string, 0, len(v))
	for _, item := range v {
		out = append(out, item.Value)
	}
	return out
}
