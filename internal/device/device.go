// Package device supplies the device-side collaborator: lockdown-style
// property access, handshake blob retrieval, and application of the terminal
// activation record. The on-device transport itself lives outside this
// program; FileDevice stands in for it with a property-list backing store.
package device

import (
	"fmt"
	"os"

	"howett.net/plist"

	"devactivate/internal/fields"
)

// Activation states as reported under the ActivationState property.
const (
	StateUnactivated = "Unactivated"
	StateActivated   = "Activated"
)

// FileDevice reads and writes device properties from a plist document on
// disk. It implements activation.PropertySource.
type FileDevice struct {
	path  string
	props map[string]any
}

// Open loads a device property store.
func Open(path string) (*FileDevice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening device info: %w", err)
	}
	var props map[string]any
	if _, err := plist.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("parsing device info %s: %w", path, err)
	}
	return &FileDevice{path: path, props: props}, nil
}

// Value returns a device property. The empty domain addresses the global
// domain; domain-scoped keys are stored as "domain/key".
func (d *FileDevice) Value(domain, key string) (any, error) {
	lookup := key
	if domain != "" {
		lookup = domain + "/" + key
	}
	v, ok := d.props[lookup]
	if !ok {
		return nil, fmt.Errorf("device has no property %q", lookup)
	}
	return v, nil
}

// ActivationState returns the current state, defaulting to Unactivated.
func (d *FileDevice) ActivationState() string {
	if s, ok := d.props["ActivationState"].(string); ok {
		return s
	}
	return StateUnactivated
}

// HandshakeBlob returns the opaque DRM handshake message when the device's
// firmware generation requires the handshake pre-step.
func (d *FileDevice) HandshakeBlob() (any, bool) {
	v, ok := d.props["DRMHandshakeRequest"]
	return v, ok
}

// ApplyHandshakeFields stores the handshake reply for the device to fold
// into its activation info.
func (d *FileDevice) ApplyHandshakeFields(fs *fields.Collection) error {
	if fs == nil {
		return fmt.Errorf("nil handshake fields")
	}
	d.props["DRMSessionInfo"] = fs.ToMap()
	return d.save()
}

// Activate applies the server-issued activation record and acknowledges the
// state change.
func (d *FileDevice) Activate(record any) error {
	if record == nil {
		return fmt.Errorf("nil activation record")
	}
	d.props["ActivationRecord"] = record
	d.props["ActivationState"] = StateActivated
	d.props["ActivationStateAcknowledged"] = true
	return d.save()
}

// Deactivate drops the activation record.
func (d *FileDevice) Deactivate() error {
	delete(d.props, "ActivationRecord")
	d.props["ActivationState"] = StateUnactivated
	d.props["ActivationStateAcknowledged"] = false
	return d.save()
}

func (d *FileDevice) save() error {
	data, err := plist.MarshalIndent(d.props, plist.XMLFormat, "\t")
	if err != nil {
		return fmt.Errorf("serializing device info: %w", err)
	}
	if err := os.WriteFile(d.path, data, 0644); err != nil {
		return fmt.Errorf("writing device info: %w", err)
	}
	return nil
}
