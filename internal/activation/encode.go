package activation

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"howett.net/plist"
)

// Encode serializes the request's field collection into a transmittable body
// and the headers that describe it. It performs no network access.
func (r *Request) Encode() ([]byte, http.Header, error) {
	headers := http.Header{}
	headers.Set("User-Agent", r.UserAgent())

	switch r.BodyType {
	case BodyURLEncoded:
		body, err := r.encodeURLForm()
		if err != nil {
			return nil, nil, err
		}
		headers.Set("Content-Type", "application/x-www-form-urlencoded")
		return body, headers, nil

	case BodyMultipartFormData:
		body, contentType, err := r.encodeMultipart()
		if err != nil {
			return nil, nil, err
		}
		headers.Set("Content-Type", contentType)
		return body, headers, nil

	case BodyPlist:
		body, err := plist.MarshalIndent(r.Fields.ToMap(), plist.XMLFormat, "\t")
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		headers.Set("Content-Type", "application/xml")
		headers.Set("Accept", "application/xml")
		return body, headers, nil

	default:
		return nil, nil, fmt.Errorf("%w: unhandled body type %d", ErrInternal, r.BodyType)
	}
}

func (r *Request) encodeURLForm() ([]byte, error) {
	var buf bytes.Buffer
	for _, key := range r.Fields.Keys() {
		value, ok := r.Fields.String(key)
		if !ok {
			return nil, fmt.Errorf("%w: field %q is not a string", ErrUnsupportedFieldType, key)
		}
		if buf.Len() > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(key)
		buf.WriteByte('=')
		buf.WriteString(percentEncode(value))
	}
	return buf.Bytes(), nil
}

func (r *Request) encodeMultipart() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, key := range r.Fields.Keys() {
		value, _ := r.Fields.Get(key)
		text, ok := value.(string)
		if !ok {
			frag, err := plistFragment(value)
			if err != nil {
				return nil, "", err
			}
			text = frag
		}
		part, err := w.CreateFormField(key)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInternal, err)
		}
		if _, err := part.Write([]byte(text)); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// percentEncode escapes every byte except alphanumerics and - _ . ~, using
// uppercase hex. Bytes above 0x7F are escaped individually, never decoded as
// runes.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '-' || c == '_' || c == '.' || c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0F])
		}
	}
	return b.String()
}

// plistFragment renders a structured value as plist XML with the document
// envelope removed, leaving only the bare fragment the server expects inside
// form parts.
func plistFragment(v any) (string, error) {
	raw, err := plist.MarshalIndent(v, plist.XMLFormat, "\t")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return stripPlistEnvelope(string(raw))
}

func stripPlistEnvelope(doc string) (string, error) {
	open := strings.Index(doc, "<plist")
	if open < 0 {
		return "", fmt.Errorf("%w: missing plist element", ErrInternal)
	}
	start := strings.IndexByte(doc[open:], '>')
	if start < 0 {
		return "", fmt.Errorf("%w: malformed plist element", ErrInternal)
	}
	start += open + 1
	stop := strings.LastIndex(doc, "</plist>")
	if stop < start {
		return "", fmt.Errorf("%w: missing plist close tag", ErrInternal)
	}
	return strings.TrimSpace(doc[start:stop]), nil
}
