package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// apiClient issues the token-authenticated HTTP calls that surround the
// streaming session: rtm.start, im.open, and the roster lookups. None of
// these are retried here; callers decide what a failure means.
type apiClient struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  *slog.Logger
}

func (a *apiClient) get(ctx context.Context, method string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", a.token)

	endpoint := a.baseURL + "/" + method + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := a.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	return nil
}

// rtmStart performs the session-start exchange. Transport failures and
// ok:false responses both surface as AuthError carrying the backend's
// reason.
func (a *apiClient) rtmStart(ctx context.Context) (*bootstrap, error) {
	var b bootstrap
	if err := a.get(ctx, "rtm.start", nil, &b); err != nil {
		return nil, &AuthError{Reason: err.Error()}
	}
	if !b.OK {
		return nil, &AuthError{Reason: orUnknown(b.Error)}
	}
	return &b, nil
}

// openIM asks the backend for the DM channel id of a user.
func (a *apiClient) openIM(ctx context.Context, userID string) (string, error) {
	var resp openIMResponse
	params := url.Values{"user": {userID}}
	if err := a.get(ctx, "im.open", params, &resp); err != nil {
		return "", err
	}
	if !resp.OK {
		return "", &BackendError{Op: "im.open", Reason: orUnknown(resp.Error)}
	}
	return resp.Channel.ID, nil
}

// channelMembers fetches the member id list for a channel or group. The
// endpoint is selected by id prefix: G ids are groups, C ids are public
// channels.
func (a *apiClient) channelMembers(ctx context.Context, channelID string) ([]string, error) {
	var method string
	switch {
	case strings.HasPrefix(channelID, "G"):
		method = "groups.info"
	case strings.HasPrefix(channelID, "C"):
		method = "channels.info"
	default:
		return nil, fmt.Errorf("channel id %q has no roster endpoint", channelID)
	}

	var resp rosterResponse
	params := url.Values{"channel": {channelID}}
	if err := a.get(ctx, method, params, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &BackendError{Op: method, Reason: orUnknown(resp.Error)}
	}
	switch {
	case resp.Channel != nil:
		return resp.Channel.Members, nil
	case resp.Group != nil:
		return resp.Group.Members, nil
	}
	return nil, &BackendError{Op: method, Reason: "response carried no member list"}
}
