package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/seekmail/seekmail/internal/apierr"
	"github.com/seekmail/seekmail/internal/browser"
)

// DefaultScopes is the Gmail access this system needs: read, modify labels,
// send, and settings (filters).
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/gmail.settings.basic",
}

// LoadAppConfig reads the static app-credential file (client id/secret in
// Google's client_secret JSON layout) and returns the oauth2 config.
func LoadAppConfig(path string, scopes []string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file %s: %w", path, err)
	}
	conf, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", path, err)
	}
	return conf, nil
}

// consentResult carries the outcome of the browser redirect back to the
// waiting authorize call.
type consentResult struct {
	code string
	err  error
}

// authorize runs the interactive consent flow: a loopback redirect listener,
// a browser launch, and a bounded wait for the user to grant or deny. The
// caller's context is the escape path; there is no unbounded block.
func authorize(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	const op = "oauth.authorize"

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, op, err)
	}
	defer ln.Close()

	// The registered client must allow loopback redirects; the port is
	// whichever one the OS handed us.
	local := *conf
	local.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())

	state, err := randomState()
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, op, err)
	}

	results := make(chan consentResult, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler:           consentHandler(state, results),
	}
	go srv.Serve(ln)
	defer srv.Close()

	url := local.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if err := browser.OpenURL(url); err != nil {
		// Headless hosts still get the URL on stderr via the caller's log;
		// the flow keeps waiting for a manual visit.
		fmt.Fprintf(os.Stderr, "Open this URL to authorize seekmail:\n%s\n", url)
	}

	select {
	case <-ctx.Done():
		return nil, apierr.Classify(op, ctx.Err())
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := local.Exchange(ctx, res.code)
		if err != nil {
			return nil, apierr.Classify(op, err)
		}
		return tok, nil
	}
}

// consentHandler validates the redirect and reports the outcome. Only the
// first callback counts; repeated hits are answered but dropped so their
// handler goroutines never block on the full channel.
func consentHandler(state string, results chan<- consentResult) http.Handler {
	const op = "oauth.authorize"
	report := func(res consentResult) {
		select {
		case results <- res:
		default:
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			report(consentResult{err: apierr.New(apierr.KindAuthDenied, op, "redirect state mismatch")})
		case q.Get("error") != "":
			fmt.Fprintln(w, "Authorization was denied. You can close this tab.")
			report(consentResult{err: apierr.New(apierr.KindAuthDenied, op, "user declined consent: %s", q.Get("error"))})
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			report(consentResult{err: apierr.New(apierr.KindAuthDenied, op, "redirect carried no authorization code")})
		default:
			fmt.Fprintln(w, "Authorization complete. You can close this tab.")
			report(consentResult{code: q.Get("code")})
		}
	})
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
