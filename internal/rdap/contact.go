package rdap

import (
	"encoding/json"
	"errors"
	"fmt"
)

// VCard is a jCard property list, the wire form of entity contact data.
// https://tools.ietf.org/html/rfc7095
type VCard []VCardProperty

// VCardProperty is one jCard property: name, parameters, value type, and one
// or more values.
type VCardProperty struct {
	Name   string
	Params map[string][]string
	Type   string
	Values []any
}

// Text returns the first string value of the first property with the given
// name, or "" when absent.
func (v VCard) Text(name string) string {
	for _, p := range v {
		if p.Name != name {
			continue
		}
		for _, val := range p.Values {
			if s, ok := val.(string); ok {
				return s
			}
		}
	}
	return ""
}

// MarshalJSON renders the canonical ["vcard", [[name, params, type, value...]]]
// array form.
func (v VCard) MarshalJSON() ([]byte, error) {
	props := make([]any, 0, len(v))
	for _, p := range v {
		params := any(p.Params)
		if p.Params == nil {
			params = struct{}{}
		}
		item := make([]any, 0, 3+len(p.Values))
		item = append(item, p.Name, params, p.Type)
		item = append(item, p.Values...)
		props = append(props, item)
	}
	return json.Marshal([]any{"vcard", props})
}

// UnmarshalJSON parses the jCard array form, rejecting structural damage
// rather than guessing.
func (v *VCard) UnmarshalJSON(data []byte) error {
	var outer []json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return fmt.Errorf("vcardArray: %w", err)
	}
	if len(outer) != 2 {
		return errors.New("vcardArray: expected two elements")
	}
	var header string
	if err := json.Unmarshal(outer[0], &header); err != nil || header != "vcard" {
		return errors.New("vcardArray: missing vcard header")
	}
	var props [][]any
	if err := json.Unmarshal(outer[1], &props); err != nil {
		return fmt.Errorf("vcardArray properties: %w", err)
	}

	out := make(VCard, 0, len(props))
	for i, raw := range props {
		if len(raw) < 4 {
			return fmt.Errorf("vcardArray property %d: expected at least four elements", i)
		}
		var p VCardProperty
		name, ok := raw[0].(string)
		if !ok {
			return fmt.Errorf("vcardArray property %d: non-string name", i)
		}
		p.Name = name
		if params, ok := raw[1].(map[string]any); ok && len(params) > 0 {
			p.Params = make(map[string][]string, len(params))
			for key, pv := range params {
				switch val := pv.(type) {
				case string:
					p.Params[key] = []string{val}
				case []any:
					for _, item := range val {
						if s, ok := item.(string); ok {
							p.Params[key] = append(p.Params[key], s)
						}
					}
				}
			}
		}
		if typ, ok := raw[2].(string); ok {
			p.Type = typ
		}
		p.Values = append(p.Values, raw[3:]...)
		out = append(out, p)
	}
	*v = out
	return nil
}

// JSContactCard is the RFC 9553 contact card served when the caller
// negotiates the jscontact extension. Only the members the converter can
// populate from jCard data are modeled.
type JSContactCard struct {
	Type          string                   `json:"@type"`
	Version       string                   `json:"version"`
	Name          *JSContactName           `json:"name,omitempty"`
	Organizations map[string]JSContactOrg  `json:"organizations,omitempty"`
	Emails        map[string]JSContactItem `json:"emails,omitempty"`
	Phones        map[string]JSContactItem `json:"phones,omitempty"`
	Addresses     map[string]JSContactAddr `json:"addresses,omitempty"`
}

// JSContactName carries the full name form.
type JSContactName struct {
	Full string `json:"full,omitempty"`
}

// JSContactOrg is one organization membership.
type JSContactOrg struct {
	Name string `json:"name"`
}

// JSContactItem is a single-valued contact point (email address or phone
// number).
type JSContactItem struct {
	Address string `json:"address,omitempty"`
	Number  string `json:"number,omitempty"`
}

// JSContactAddr is a postal address in its undissected form.
type JSContactAddr struct {
	Full string `json:"full,omitempty"`
}

// JSContactFromVCard converts the jCard properties a registry commonly
// populates (fn, org, email, tel, adr) into a JSContact card. Properties the
// card cannot express are dropped. Returns nil when nothing converts.
func JSContactFromVCard(vc VCard) *JSContactCard {
	card := &JSContactCard{Type: "Card", Version: "1.0"}
	populated := false
	emails := 0
	phones := 0
	addrs := 0
	for _, p := range vc {
		switch p.Name {
		case "fn":
			if full := firstString(p.Values); full != "" && card.Name == nil {
				card.Name = &JSContactName{Full: full}
				populated = true
			}
		case "org":
			if name := firstString(p.Values); name != "" {
				if card.Organizations == nil {
					card.Organizations = make(map[string]JSContactOrg)
				}
				card.Organizations[fmt.Sprintf("org-%d", len(card.Organizations)+1)] = JSContactOrg{Name: name}
				populated = true
			}
		case "email":
			if addr := firstString(p.Values); addr != "" {
				if card.Emails == nil {
					card.Emails = make(map[string]JSContactItem)
				}
				emails++
				card.Emails[fmt.Sprintf("e%d", emails)] = JSContactItem{Address: addr}
				populated = true
			}
		case "tel":
			if num := firstString(p.Values); num != "" {
				if card.Phones == nil {
					card.Phones = make(map[string]JSContactItem)
				}
				phones++
				card.Phones[fmt.Sprintf("p%d", phones)] = JSContactItem{Number: num}
				populated = true
			}
		case "adr":
			if full := joinAddress(p); full != "" {
				if card.Addresses == nil {
					card.Addresses = make(map[string]JSContactAddr)
				}
				addrs++
				card.Addresses[fmt.Sprintf("a%d", addrs)] = JSContactAddr{Full: full}
				populated = true
			}
		}
	}
	if !populated {
		return nil
	}
	return card
}

func firstString(values []any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// joinAddress flattens an adr property. The label parameter wins when
// present; otherwise the structured components are joined in order.
func joinAddress(p VCardProperty) string {
	if labels, ok := p.Params["label"]; ok && len(labels) > 0 {
		return labels[0]
	}
	out := ""
	for _, v := range p.Values {
		switch val := v.(type) {
		case string:
			out = appendAddressPart(out, val)
		case []any:
			for _, item := range val {
				if s, ok := item.(string); ok {
					out = appendAddressPart(out, s)
				}
			}
		}
	}
	return out
}

func appendAddressPart(out, part string) string {
	if part == "" {
		return out
	}
	if out == "" {
		return part
	}
	return out + ", " + part
}
