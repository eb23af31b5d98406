package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnotifier/internal/ebird"
	"github.com/tphakala/birdnotifier/internal/notification"
)

const notableResponse = `[
  {"speciesCode":"cangoo","comName":"Canada Goose","sciName":"Branta canadensis",
   "locId":"L109516","locName":"Central Park","obsDt":"2024-04-09 07:09","howMany":12,
   "lat":40.79,"lng":-73.95,"obsValid":true,"obsReviewed":false,"locationPrivate":false,
   "subId":"S100","userDisplayName":"Ada","obsId":"OBS1","hasComments":false,"hasRichMedia":false},
  {"speciesCode":"mallar3","comName":"Mallard","sciName":"Anas platyrhynchos",
   "locId":"L191106","locName":"Prospect Park","obsDt":"2024-04-08","presenceNoted":true,
   "lat":40.66,"lng":-73.96,"obsValid":true,"obsReviewed":true,"locationPrivate":false,
   "subId":"S200","userDisplayName":"Grace","obsId":"OBS2","hasComments":false,"hasRichMedia":false},
  {"speciesCode":"cangoo","comName":"Canada Goose","sciName":"Branta canadensis",
   "locId":"L109516","locName":"Central Park","obsDt":"2024-04-09 07:09","howMany":12,
   "lat":40.79,"lng":-73.95,"obsValid":true,"obsReviewed":false,"locationPrivate":false,
   "subId":"S100","userDisplayName":"Ada","obsId":"OBS1","hasComments":false,"hasRichMedia":false}
]`

type sentMessage struct {
	subject string
	body    string
}

// TestEndToEnd drives the eBird client and the e-mail notifier against a fake eBird
// server, then reruns to check nothing is sent twice.
func TestEndToEnd(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/data/obs/US-NY/recent/notable" ||
			r.URL.Query().Get("back") != "2" || r.URL.Query().Get("detail") != "full" ||
			r.Header.Get("X-eBirdApiToken") != "ebird-key" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json;charset=utf-8")
		_, _ = w.Write([]byte(notableResponse))
	}))
	defer server.Close()

	client, err := ebird.NewClient(ebird.Config{
		APIKey:  "ebird-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	}, testLogger())
	require.NoError(t, err)

	var sent []sentMessage
	mailer, err := notification.NewEmailNotifier(notification.EmailConfig{
		Host:       "smtp.example.com",
		Port:       587,
		Auth:       notification.AuthPlain,
		Password:   "app-password",
		From:       "birder@example.com",
		Recipients: []string{"friend@example.com"},
		Subject:    "birdNotifier Message",
	}, nil, testLogger(), notification.WithSendFunc(
		func(_ context.Context, _, subject, body string) error {
			sent = append(sent, sentMessage{subject: subject, body: body})
			return nil
		}))
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	p := newTestPipeline(t, fs, defaultConfig(), client, mailer)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched, "duplicate record collapses")
	assert.Equal(t, 2, res.Notified)

	require.Len(t, sent, 1)
	assert.Equal(t, "birdNotifier Message", sent[0].subject)
	assert.Equal(t,
		"<p><b>Canada Goose</b> (12), 4/9/2024 7:09, Central Park, Ada -- https://ebird.org/checklist/S100</p>\n"+
			"<p><b>Mallard</b> (X), 4/8/2024, Prospect Park, Grace -- https://ebird.org/checklist/S200</p>\n",
		sent[0].body)
	assert.Equal(t, "OBS1,4/9/2024 7:09\nOBS2,4/8/2024\n", readLedger(t, fs))

	// Rerun against the same ledger sends nothing
	res, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, sent, 1)
	assert.Equal(t, StageDone, res.Stage)
	assert.Equal(t, 2, res.AlreadyNotified)
	assert.Equal(t, "OBS1,4/9/2024 7:09\nOBS2,4/8/2024\n", readLedger(t, fs))
	assert.Equal(t, int64(2), requests.Load())
}

func TestEndToEndExcludedSpecies(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(notableResponse))
	}))
	defer server.Close()

	client, err := ebird.NewClient(ebird.Config{APIKey: "ebird-key", BaseURL: server.URL}, testLogger())
	require.NoError(t, err)

	var bodies []string
	mailer, err := notification.NewEmailNotifier(notification.EmailConfig{
		Host:       "smtp.example.com",
		Port:       587,
		Auth:       notification.AuthPlain,
		Password:   "app-password",
		From:       "birder@example.com",
		Recipients: []string{"friend@example.com"},
	}, nil, testLogger(), notification.WithSendFunc(
		func(_ context.Context, _, _, body string) error {
			bodies = append(bodies, body)
			return nil
		}))
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	cfg := defaultConfig()
	cfg.Exclude = []string{"Canada Goose"}

	_, err = newTestPipeline(t, fs, cfg, client, mailer).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, bodies, 1)
	assert.False(t, strings.Contains(bodies[0], "Canada Goose"))
	assert.Contains(t, bodies[0], "Mallard")
	assert.Equal(t, "OBS2,4/8/2024\n", readLedger(t, fs))
}
