package activation

import (
	"fmt"
	"strings"

	"github.com/elnormous/contenttype"

	"devactivate/internal/fields"
)

// Dialect identifies the wire dialect of a server reply.
type Dialect int

const (
	DialectUnknown Dialect = iota
	DialectPlist
	DialectBuddyML
	DialectHTML
)

func (d Dialect) String() string {
	switch d {
	case DialectPlist:
		return "plist"
	case DialectBuddyML:
		return "buddyml"
	case DialectHTML:
		return "html"
	default:
		return "unknown"
	}
}

var (
	plistTextMediaType = contenttype.NewMediaType("text/xml")
	plistAppMediaType  = contenttype.NewMediaType("application/xml")
	buddymlMediaType   = contenttype.NewMediaType("application/x-buddyml")
	htmlMediaType      = contenttype.NewMediaType("text/html")
)

// Header is one response header, order-preserving.
type Header struct {
	Name  string
	Value string
}

// Response is one server reply. RawContent is kept verbatim for diagnostics;
// everything else is derived by AddHeader and Parse.
type Response struct {
	RawContent []byte
	Dialect    Dialect

	Title       string
	Description string

	// ActivationRecord is the opaque terminal artifact to hand back to
	// the device. Only the plist and HTML dialects ever populate it.
	ActivationRecord any

	Headers []Header
	Fields  *fields.Collection

	IsActivationAck bool
	IsAuthRequired  bool
	HasErrors       bool
}

// NewResponse returns an empty response with an unknown dialect.
func NewResponse() *Response {
	return &Response{Fields: fields.New()}
}

// NewResponseFromHTML builds and parses a response directly from HTML
// content, bypassing header classification.
func NewResponseFromHTML(content []byte) (*Response, error) {
	resp := NewResponse()
	resp.RawContent = append([]byte(nil), content...)
	resp.Dialect = DialectHTML
	if err := resp.Parse(); err != nil {
		return nil, err
	}
	return resp, nil
}

// AddHeader records a response header as it arrives and classifies the
// dialect from the Content-Type value. Classification happens here, before
// and independent of body parsing; header order is not guaranteed.
func (r *Response) AddHeader(name, value string) {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
	if !strings.EqualFold(name, "Content-Type") {
		return
	}
	r.Dialect = classifyMediaType(value)
}

// Header returns the first header with the given name, case-insensitively.
func (r *Response) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func classifyMediaType(value string) Dialect {
	mt := contenttype.NewMediaType(value)
	switch {
	case mt.Matches(plistTextMediaType), mt.Matches(plistAppMediaType):
		return DialectPlist
	case mt.Matches(buddymlMediaType):
		return DialectBuddyML
	case mt.Matches(htmlMediaType):
		return DialectHTML
	default:
		return DialectUnknown
	}
}

// Parse extracts title, description, record, acknowledgment and field data
// from the raw content according to the classified dialect.
func (r *Response) Parse() error {
	switch r.Dialect {
	case DialectPlist:
		return r.parsePlist()
	case DialectBuddyML:
		return r.parseBuddyML()
	case DialectHTML:
		return r.parseHTML()
	default:
		return fmt.Errorf("%w: cannot parse %s response", ErrUnknownContentType, r.Dialect)
	}
}

// FieldRequiresInput reports whether the server demands a value for key.
func (r *Response) FieldRequiresInput(key string) bool {
	return r.Fields.Meta(key).RequiresInput
}

// FieldSecureInput reports whether key holds a sensitive value that must not
// be echoed.
func (r *Response) FieldSecureInput(key string) bool {
	return r.Fields.Meta(key).SecureInput
}

// FieldLabel returns the display label for key, or "" if none was given.
func (r *Response) FieldLabel(key string) string {
	return r.Fields.Meta(key).Label
}

// FieldPlaceholder returns the input hint for key, or "" if none was given.
func (r *Response) FieldPlaceholder(key string) string {
	return r.Fields.Meta(key).Placeholder
}
