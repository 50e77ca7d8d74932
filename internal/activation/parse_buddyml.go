package activation

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"devactivate/internal/fields"
)

// parseBuddyML interprets the proprietary one-screen wizard dialect. The
// checks run in a fixed precedence: an error screen or an acknowledgment is
// terminal, everything after that accumulates title, description, input rows
// and server info.
func (r *Response) parseBuddyML() error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(r.RawContent); err != nil {
		return fmt.Errorf("%w: %v", ErrBuddymlParsing, err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("%w: empty document", ErrBuddymlParsing)
	}

	// A navigationBar directly under the root only appears on an error
	// screen.
	if nav := root.SelectElement("navigationBar"); nav != nil {
		r.Title = nav.SelectAttrValue("title", "")
		r.HasErrors = true
		return nil
	}

	// clientInfo flagged ack-received reports an already activated device.
	for _, ci := range root.SelectElements("clientInfo") {
		if ci.SelectAttrValue("ack-received", "") == "true" {
			r.IsActivationAck = true
			return nil
		}
	}

	// An alert element only exists for rejected credentials; otherwise the
	// page's own navigation bar names the screen.
	if alert := root.SelectElement("alert"); alert != nil {
		r.Title = alert.SelectAttrValue("title", "")
	} else if nav := root.FindElement("./page/navigationBar"); nav != nil {
		r.Title = nav.SelectAttrValue("title", "")
	}

	r.Description = footerDescription(root)

	for _, row := range root.FindElements("./page//editableTextRow") {
		id := row.SelectAttr("id")
		if id == nil || id.Value == "" {
			return fmt.Errorf("%w: editableTextRow without id", ErrBuddymlParsing)
		}
		r.Fields.SetWithMeta(id.Value, "", fields.Meta{
			RequiresInput: true,
			SecureInput:   row.SelectAttrValue("secure", "") == "true",
			Label:         row.SelectAttrValue("label", ""),
			Placeholder:   row.SelectAttrValue("placeholder", ""),
		})
	}

	if info := root.SelectElement("serverInfo"); info != nil {
		for _, attr := range info.Attr {
			if attr.Key == "isAuthRequired" {
				r.IsAuthRequired = true
			}
			r.Fields.Set(attr.Key, attr.Value)
		}
	}

	// No record, no ack, no error screen and nothing to fill in: the reply
	// is unusable.
	if r.Fields.Len() == 0 {
		r.HasErrors = true
	}
	return nil
}

// footerDescription joins the footer text of every section that carries no
// footerLinkURL. Sections with a link URL are navigation chrome, not part of
// the message shown to the user.
func footerDescription(root *etree.Element) string {
	var parts []string
	for _, section := range root.FindElements("./page/tableView/section") {
		if section.SelectAttr("footerLinkURL") != nil {
			continue
		}
		if footer := section.SelectAttr("footer"); footer != nil {
			parts = append(parts, footer.Value)
		}
	}
	return strings.Join(parts, "\n")
}
