package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lanikai/strawberry/internal/errs"
)

// StreamSession is a voice connection used for the platform's "Go Live"
// screen-share streams rather than a regular voice channel. It reuses
// Session's entire FSM and overrides only the speaking-flag encoding and
// adds the preview-thumbnail upload, mirroring the original source's
// StreamConnection(VoiceConnection) subclass.
type StreamSession struct {
	*Session

	streamKey  string
	apiBaseURL string
	authToken  string

	httpClient *http.Client
}

// NewStreamSession constructs a StreamSession. apiBaseURL and authToken are
// used only by SetPreview's HTTP upload; streamKey may be set later via
// SetStreamKey once the platform assigns one.
func NewStreamSession(cfg Config, apiBaseURL, authToken string) *StreamSession {
	s := &StreamSession{
		Session:    NewSession(cfg),
		apiBaseURL: apiBaseURL,
		authToken:  authToken,
		httpClient: http.DefaultClient,
	}
	// Stream sessions encode "speaking" as 2 ("soundshare"), not 1, per the
	// original source's set_speaking override.
	s.Session.speakingValue = func(speaking bool) int {
		if speaking {
			return 2
		}
		return 0
	}
	return s
}

// SetStreamKey records the stream key assigned by STREAM_CREATE, required
// before SetPreview can be used.
func (s *StreamSession) SetStreamKey(key string) {
	s.streamKey = key
}

// SetPreview uploads a thumbnail image for the live stream via an
// authenticated HTTP POST to /streams/{stream_key}/preview, the one part of
// this client that talks HTTP rather than the signalling websocket or UDP
// transport (see DESIGN.md for why net/http rather than a third-party HTTP
// client is used here). Returns true on HTTP 204, matching the original
// source's boolean "did it work" result.
func (s *StreamSession) SetPreview(ctx context.Context, previewBytes []byte, mime string) (bool, error) {
	if s.streamKey == "" {
		return false, errs.New(errs.ConfigError, "SetPreview called before stream key is set")
	}

	body, err := json.Marshal(struct {
		Thumbnail string `json:"thumbnail"`
	}{
		Thumbnail: fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(previewBytes)),
	})
	if err != nil {
		return false, err
	}

	url := fmt.Sprintf("%s/streams/%s/preview", s.apiBaseURL, s.streamKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, errs.Wrap(errs.TransportError, err, "building preview request")
	}
	req.Header.Set("Authorization", s.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, errs.Wrap(errs.TransportError, err, "uploading stream preview")
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusNoContent, nil
}
