// Package render turns views into what a map display needs: popup markup per
// feature, fit-to-data bounds and clustering parameters.
package render

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/recon-map/internal/domain"
)

const (
	naraCatalogURL = "https://catalog.archives.gov/id/"
	noDetails      = "No details available."
)

var imageURL = regexp.MustCompile(`(?i)\.(jpeg|jpg|gif|png)$`)

// PopupHandler renders the popup body for one feature.
type PopupHandler interface {
	Popup(props geojson.Properties, dateProperty string) string
}

// GenericPopup shows name, date, scale, a NARA catalog link and a link to the
// full image with an inline preview for image URLs.
type GenericPopup struct{}

func (GenericPopup) Popup(props geojson.Properties, dateProperty string) string {
	var b strings.Builder

	if name := text(props, "name"); name != "" {
		fmt.Fprintf(&b, "<b>%s</b><br>", html.EscapeString(name))
	}
	if date := text(props, dateProperty); date != "" {
		fmt.Fprintf(&b, "Date: %s<br>", html.EscapeString(date))
	}
	if scale := text(props, "scale"); scale != "" {
		fmt.Fprintf(&b, "Scale: %s<br>", html.EscapeString(scale))
	}
	if id := text(props, "naId"); id != "" {
		fmt.Fprintf(&b, `NARA ID: <a href="%s" target="_blank" rel="noopener noreferrer">%s</a><br>`,
			html.EscapeString(naraCatalogURL+url.PathEscape(id)), html.EscapeString(id))
	}
	if u := text(props, "objectUrl"); safeURL(u) {
		escaped := html.EscapeString(u)
		fmt.Fprintf(&b, `<a href="%s" target="_blank" rel="noopener noreferrer">View Full Image</a><br>`, escaped)
		if imageURL.MatchString(u) {
			fmt.Fprintf(&b, `<img src="%s" alt="Preview Image" class="popup-image">`, escaped)
		}
	}
	return b.String()
}

// ArchivePopup prefixes the generic popup with the holding archive's name.
type ArchivePopup struct {
	Provenance domain.Provenance
}

func (a ArchivePopup) Popup(props geojson.Properties, dateProperty string) string {
	body := GenericPopup{}.Popup(props, dateProperty)
	label := a.Provenance.Label()
	if label == "" {
		return body
	}
	return fmt.Sprintf(`<span class="popup-archive">%s</span><br>`, html.EscapeString(label)) + body
}

// Popups selects a handler by feature provenance.
type Popups struct {
	handlers map[domain.Provenance]PopupHandler
	fallback PopupHandler
}

// NewPopups registers the archive handlers for every known provenance.
func NewPopups() *Popups {
	p := &Popups{
		handlers: make(map[domain.Provenance]PopupHandler),
		fallback: GenericPopup{},
	}
	for _, prov := range []domain.Provenance{domain.ProvenanceNARA, domain.ProvenanceBArch, domain.ProvenanceIGN, domain.ProvenanceWUR} {
		p.handlers[prov] = ArchivePopup{Provenance: prov}
	}
	return p
}

// Register overrides the handler for one provenance.
func (p *Popups) Register(prov domain.Provenance, h PopupHandler) {
	p.handlers[prov] = h
}

// Content returns the popup markup for f, or a placeholder when the feature
// has nothing to show.
func (p *Popups) Content(f *geojson.Feature, dateProperty string) string {
	if f == nil || len(f.Properties) == 0 {
		return noDetails
	}
	h, ok := p.handlers[domain.ProvenanceOf(f)]
	if !ok {
		h = p.fallback
	}
	if s := h.Popup(f.Properties, dateProperty); s != "" {
		return s
	}
	return noDetails
}

func text(props geojson.Properties, key string) string {
	switch v := props[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func safeURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
