package apply

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"careers-relay/internal/models"

	"go.uber.org/zap"
)

// ErrNotConfirmed means the hosting platform accepted the post but did not land on
// the success target.
var ErrNotConfirmed = errors.New("submission was not confirmed by the form host")

// NativeCapture posts the form to the hosting platform's built-in form capture. The
// platform answers with a redirect to the success target, which must carry the
// success marker.
type NativeCapture struct {
	siteURL       string
	formName      string
	successTarget string
	client        *http.Client
	log           *zap.Logger

	mu      sync.Mutex
	landing string
}

func NewNativeCapture(siteURL, formName, successTarget string, client *http.Client, log *zap.Logger) *NativeCapture {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &NativeCapture{
		siteURL:       siteURL,
		formName:      formName,
		successTarget: successTarget,
		client:        &c,
		log:           log.Named("native"),
	}
}

func (t *NativeCapture) Submit(ctx context.Context, fields models.ApplicationFields, file *models.Attachment) error {
	action, err := t.actionURL()
	if err != nil {
		return err
	}

	fw := newFormWriter()
	fw.field("form-name", t.formName)
	fw.field("bot-field", "")
	fw.application(fields)
	fw.file("attachment", file)
	body, contentType, err := fw.finish()
	if err != nil {
		return fmt.Errorf("build form body: %w", err)
	}

	post := *action
	post.Fragment = ""
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, post.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("form post failed: %w", err)
	}
	defer resp.Body.Close()

	var landing *url.URL
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc, err := resp.Location()
		if err != nil {
			return fmt.Errorf("redirect without location: %w", err)
		}
		// A Location without a fragment inherits the fragment of the request URL.
		if loc.Fragment == "" {
			loc.Fragment = action.Fragment
		}
		landing = loc
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		landing = action
	default:
		return responseError(resp)
	}

	t.mu.Lock()
	t.landing = landing.String()
	t.mu.Unlock()

	if !HasMarker(landing) {
		t.log.Warn("form host did not land on the success target", zap.String("landing", landing.String()))
		return ErrNotConfirmed
	}
	return nil
}

// Landing is the URL the last accepted post landed on.
func (t *NativeCapture) Landing() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.landing
}

func (t *NativeCapture) actionURL() (*url.URL, error) {
	base, err := url.Parse(t.siteURL + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid site url: %w", err)
	}
	target, err := url.Parse(t.successTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid success target: %w", err)
	}
	return base.ResolveReference(target), nil
}
