package twilio

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Dialer rings the trainee: it places an outbound call whose voice webhook
// points back at this engine, so answering drops them straight into the
// roleplay session.
type Dialer struct {
	cfg    Config
	client callCreator
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg.withDefaults()}
}

// Dial places the call. An empty url falls back to this engine's own voice
// webhook derived from the public URL.
func (d *Dialer) Dial(_ context.Context, to, from, url string) (string, error) {
	switch {
	case to == "" || from == "":
		return "", errors.New("to/from required")
	case d.cfg.AccountSID == "" || d.cfg.AuthToken == "":
		return "", errors.New("missing twilio credentials")
	}
	if url == "" {
		url = d.voiceWebhookURL()
	}

	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(url)

	resp, err := d.restClient().CreateCall(params)
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Sid == nil {
		return "", fmt.Errorf("missing call sid")
	}
	return *resp.Sid, nil
}

func (d *Dialer) restClient() callCreator {
	if d.client != nil {
		return d.client
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: d.cfg.AccountSID,
		Password: d.cfg.AuthToken,
	})
	return rest.Api
}

func (d *Dialer) voiceWebhookURL() string {
	return "https://" + stripScheme(d.cfg.PublicURL) + d.cfg.VoicePath
}
