package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// References arrive either as a bare id (unpopulated) or as the populated
// document. Both shapes decode into the same struct.

type TableRef struct {
	ID     string `json:"_id,omitempty"`
	Number int    `json:"tableNumber"`
}

type CustomerRef struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type ProductRef struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name,omitempty"`
}

func (t *TableRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		return nil
	}
	switch data[0] {
	case '{':
		type plain TableRef
		var decoded plain
		if err := json.Unmarshal(data, &decoded); err != nil {
			return err
		}
		*t = TableRef(decoded)
		return nil
	case '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if n, err := strconv.Atoi(raw); err == nil {
			*t = TableRef{Number: n}
			return nil
		}
		*t = TableRef{ID: raw}
		return nil
	default:
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("table reference: %w", err)
		}
		*t = TableRef{Number: n}
		return nil
	}
}

func (c *CustomerRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*c = CustomerRef{ID: id}
		return nil
	}
	type plain CustomerRef
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("customer reference: %w", err)
	}
	*c = CustomerRef(decoded)
	return nil
}

func (p *ProductRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*p = ProductRef{ID: id}
		return nil
	}
	type plain ProductRef
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("product reference: %w", err)
	}
	*p = ProductRef(decoded)
	return nil
}

// Resolved reports whether the customer was populated beyond its id.
func (c CustomerRef) Resolved() bool {
	return c.Name != "" || c.Email != "" || c.Phone != ""
}

// DisplayName falls back to the product id when the product was not populated.
func (p ProductRef) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func isNull(data []byte) bool {
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}
