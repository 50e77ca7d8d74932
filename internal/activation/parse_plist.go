package activation

import (
	"bytes"
	"fmt"

	"howett.net/plist"

	"devactivate/internal/fields"
)

// parsePlist interprets the body as one property-list document. Three shapes
// are recognized:
//
//   - a handshake reply, marked by a top-level HandshakeResponseMessage key;
//     the whole document becomes the field set and nothing else is extracted
//   - the current shape, with the record directly under ActivationRecord
//   - the legacy shape, wrapped in iphone-activation or device-activation
//     with the record under an activation-record child
func (r *Response) parsePlist() error {
	doc, err := decodePlistDict(r.RawContent)
	if err != nil {
		return err
	}

	// The parsed document doubles as the response field set.
	r.Fields = fields.FromMap(doc)

	if _, ok := doc["HandshakeResponseMessage"]; ok {
		return nil
	}

	if record, ok := doc["ActivationRecord"]; ok {
		if m, ok := record.(map[string]any); ok {
			if ack, _ := m["ack-received"].(bool); ack {
				r.IsActivationAck = true
			}
		}
		r.ActivationRecord = record
		return nil
	}

	wrapper, ok := legacyActivationNode(doc)
	if !ok {
		return fmt.Errorf("%w: no activation node found", ErrPlistParsing)
	}
	if ack, _ := wrapper["ack-received"].(bool); ack {
		r.IsActivationAck = true
		return nil
	}
	record, ok := wrapper["activation-record"]
	if !ok {
		return fmt.Errorf("%w: activation node carries no record", ErrPlistParsing)
	}
	r.ActivationRecord = record
	return nil
}

// parseEmbeddedPlist handles the property-list payload dug out of an HTML
// reply. An unrecognized document is a server-side error screen rather than
// an engine failure, so it flips has_errors instead of failing.
func (r *Response) parseEmbeddedPlist(payload []byte) error {
	doc, err := decodePlistDict(bytes.TrimSpace(payload))
	if err != nil {
		r.HasErrors = true
		return nil
	}

	wrapper, ok := legacyActivationNode(doc)
	if !ok {
		r.HasErrors = true
		return nil
	}

	if ackNode, present := wrapper["ack-received"]; present {
		ack, _ := ackNode.(bool)
		if !ack {
			return fmt.Errorf("%w: ack-received is not true", ErrPlistParsing)
		}
		r.IsActivationAck = true
		return nil
	}

	record, ok := wrapper["activation-record"]
	if !ok {
		return fmt.Errorf("%w: activation node carries no record", ErrPlistParsing)
	}
	r.ActivationRecord = record
	return nil
}

func decodePlistDict(data []byte) (map[string]any, error) {
	var doc any
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlistParsing, err)
	}
	dict, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: document root is not a dictionary", ErrPlistParsing)
	}
	return dict, nil
}

func legacyActivationNode(doc map[string]any) (map[string]any, bool) {
	for _, key := range []string{"iphone-activation", "device-activation"} {
		if node, ok := doc[key].(map[string]any); ok {
			return node, true
		}
	}
	return nil, false
}
