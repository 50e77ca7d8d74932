// Package activation implements the client-side activation protocol engine:
// request construction and encoding, response classification across the
// plist, BuddyML and HTML wire dialects, and extraction of activation
// records, acknowledgments and follow-up input fields.
package activation

import (
	"fmt"

	"devactivate/internal/fields"
)

// Default endpoints of the activation web service.
const (
	DefaultActivationURL = "https://albert.apple.com/deviceservices/deviceActivation"
	DefaultHandshakeURL  = "https://albert.apple.com/deviceservices/drmHandshake"
)

const (
	userAgentMobileActivation = "iOS Device Activator (MobileActivation-20 built on Jan 15 2012 at 19:07:28)"
	userAgentITunes           = "iTunes/11.1.4 (Macintosh; OS X 10.9.1) AppleWebKit/537.73.11"
)

// ClientType selects the identifying metadata sent to the server.
type ClientType int

const (
	ClientMobileActivation ClientType = iota
	ClientITunes
)

// BodyType selects the request body encoding.
type BodyType int

const (
	BodyURLEncoded BodyType = iota
	BodyMultipartFormData
	BodyPlist
)

// PropertySource exposes lockdown-style device properties. The zero domain
// ("") addresses the global domain.
type PropertySource interface {
	Value(domain, key string) (any, error)
}

// Request is one outgoing exchange with the activation service. It owns its
// field collection exclusively.
type Request struct {
	ClientType ClientType
	BodyType   BodyType
	URL        string
	Fields     *fields.Collection
}

// NewRequest returns an empty url-encoded request against the default
// activation endpoint.
func NewRequest(ct ClientType) *Request {
	return &Request{
		ClientType: ct,
		BodyType:   BodyURLEncoded,
		URL:        DefaultActivationURL,
		Fields:     fields.New(),
	}
}

// NewHandshakeRequest returns a request for the DRM handshake pre-step. The
// body is always a property-list document against the handshake endpoint.
func NewHandshakeRequest(ct ClientType) *Request {
	return &Request{
		ClientType: ct,
		BodyType:   BodyPlist,
		URL:        DefaultHandshakeURL,
		Fields:     fields.New(),
	}
}

// NewRequestFromDevice seeds a multipart request with the device's identity
// fields. SerialNumber and ActivationInfo are mandatory; telephony
// identifiers are collected only when the device reports telephony
// capability. Missing optional identifiers are skipped silently, matching
// how devices without a baseband respond.
func NewRequestFromDevice(ct ClientType, dev PropertySource) (*Request, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInternal)
	}

	fs := fields.New()
	fs.Set("InStoreActivation", "false")

	serial, err := stringProperty(dev, "SerialNumber")
	if err != nil {
		return nil, fmt.Errorf("%w: SerialNumber unavailable", ErrIncompleteInfo)
	}
	fs.Set("AppleSerialNumber", serial)

	if hasTelephony(dev) {
		for _, id := range []struct{ property, field string }{
			{"InternationalMobileEquipmentIdentity", "IMEI"},
			{"MobileEquipmentIdentifier", "MEID"},
			{"InternationalMobileSubscriberIdentity", "IMSI"},
			{"IntegratedCircuitCardIdentity", "ICCID"},
		} {
			if v, err := stringProperty(dev, id.property); err == nil {
				fs.Set(id.field, v)
			}
		}
	}

	ainfo, err := dev.Value("", "ActivationInfo")
	if err != nil || ainfo == nil {
		return nil, fmt.Errorf("%w: ActivationInfo unavailable", ErrIncompleteInfo)
	}
	if _, ok := ainfo.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: ActivationInfo is not a dictionary", ErrIncompleteInfo)
	}
	fs.Set("activation-info", ainfo)

	return &Request{
		ClientType: ct,
		BodyType:   BodyMultipartFormData,
		URL:        DefaultActivationURL,
		Fields:     fs,
	}, nil
}

func stringProperty(dev PropertySource, key string) (string, error) {
	v, err := dev.Value("", key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("property %s is not a string", key)
	}
	return s, nil
}

func hasTelephony(dev PropertySource) bool {
	v, err := dev.Value("", "TelephonyCapability")
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SetURL retargets the request.
func (r *Request) SetURL(url string) {
	r.URL = url
}

// SetField stores a plain string field.
func (r *Request) SetField(key, value string) {
	r.Fields.Set(key, value)
}

// Field returns the value stored under key. Structured values are rendered
// as envelope-stripped plist XML, the same form they take on the wire.
func (r *Request) Field(key string) (string, error) {
	v, ok := r.Fields.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: no field %q", ErrInternal, key)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return plistFragment(v)
}

// SetFields merges fs into the request. A url-encoded request is widened to
// multipart first if any incoming value is not a plain string, since the
// url-encoded body cannot carry structured values.
func (r *Request) SetFields(fs *fields.Collection) {
	if fs == nil {
		return
	}
	if r.BodyType == BodyURLEncoded && fs.HasNonString() {
		r.BodyType = BodyMultipartFormData
	}
	r.Fields.Merge(fs)
}

// SetFieldsFromResponse seeds the request with the field set a response
// echoed or demanded.
func (r *Request) SetFieldsFromResponse(resp *Response) {
	if resp == nil || resp.Fields == nil {
		return
	}
	r.SetFields(resp.Fields)
}

// UserAgent returns the identity string for the request's client type.
func (r *Request) UserAgent() string {
	if r.ClientType == ClientITunes {
		return userAgentITunes
	}
	return userAgentMobileActivation
}
