package rdap

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownClass reports JSON whose objectClassName does not name a
// storable object class.
var ErrUnknownClass = errors.New("unknown object class")

// DecodeObject parses one RDAP object, dispatching on its objectClassName.
// Only the five storable classes decode this way; help responses have no
// class name and use DecodeHelp.
func DecodeObject(data []byte) (Object, error) {
	var probe struct {
		ObjectClassName string `json:"objectClassName"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}

	switch Kind(probe.ObjectClassName) {
	case KindDomain:
		var d Domain
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode domain: %w", err)
		}
		return &d, nil
	case KindEntity:
		var e Entity
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode entity: %w", err)
		}
		return &e, nil
	case KindNameserver:
		var n Nameserver
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("decode nameserver: %w", err)
		}
		return &n, nil
	case KindAutnum:
		var a Autnum
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode autnum: %w", err)
		}
		return &a, nil
	case KindNetwork:
		var n Network
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("decode ip network: %w", err)
		}
		return &n, nil
	case "":
		return nil, fmt.Errorf("%w: missing objectClassName", ErrUnknownClass)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, probe.ObjectClassName)
	}
}

// DecodeHelp parses a server help response body.
func DecodeHelp(data []byte) (*Help, error) {
	var h Help
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode help: %w", err)
	}
	return &h, nil
}
