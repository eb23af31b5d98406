// Package notification delivers batches of new observations by e-mail through shoutrrr,
// authenticating to the SMTP server with a password or an OAuth2 access token.
package notification

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/tphakala/birdnotifier/internal/observation"
)

// bodyTemplate renders one paragraph per observation, html/template escapes every value
var bodyTemplate = template.Must(template.New("body").Parse(
	`{{range .}}<p><b>{{.Name}}</b> ({{.Count}}), {{.When}}, {{.Location}}, {{.Observer}} -- {{.URL}}</p>
{{end}}`))

// lineView holds the values interpolated for a single observation
type lineView struct {
	Name     string
	Count    string
	When     string
	Location string
	Observer string
	URL      string
}

// RenderBody builds the HTML message body for obs, in the given order.
func RenderBody(obs []observation.Observation) (string, error) {
	views := make([]lineView, len(obs))
	for i := range obs {
		o := &obs[i]
		views[i] = lineView{
			Name:     o.CommonName,
			Count:    o.CountLabel(),
			When:     o.ObservedAt.Render(),
			Location: o.LocationName,
			Observer: o.Observer,
			URL:      o.ChecklistURL(),
		}
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, views); err != nil {
		return "", fmt.Errorf("failed to render message body: %w", err)
	}
	return buf.String(), nil
}
