package activation

import "errors"

// Engine error kinds. Parsers and the encoder wrap these with context via
// fmt.Errorf("%w"), so callers match them with errors.Is.
var (
	// ErrIncompleteInfo means mandatory device data (serial number,
	// activation info) was missing before any transmission.
	ErrIncompleteInfo = errors.New("incomplete device information")

	// ErrUnknownContentType means the response dialect could never be
	// determined from the Content-Type header.
	ErrUnknownContentType = errors.New("unknown content type")

	// ErrBuddymlParsing means the BuddyML form description violated its
	// grammar.
	ErrBuddymlParsing = errors.New("buddyml parsing error")

	// ErrPlistParsing means a property-list document was malformed or did
	// not carry a recognized activation shape.
	ErrPlistParsing = errors.New("plist parsing error")

	// ErrHTMLParsing means an HTML payload could not be interpreted.
	ErrHTMLParsing = errors.New("html parsing error")

	// ErrUnsupportedFieldType means a non-string value was encoded where
	// only strings are representable (form-urlencoded bodies).
	ErrUnsupportedFieldType = errors.New("unsupported field type")

	// ErrInternal indicates an invariant violation inside the engine.
	ErrInternal = errors.New("internal error")
)
