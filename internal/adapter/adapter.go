// Package adapter isolates platform-specific message operations behind a
// strategy interface, so feature code stays platform-neutral and degrades
// cleanly when the bot runs against an unsupported protocol.
package adapter

import (
	"context"
	"errors"
	"fmt"
)

// PlatformOneBotV11 identifies the OneBot V11 protocol family.
const PlatformOneBotV11 = "onebot-v11"

// ErrUnsupportedAdapter signals that no strategy exists for the platform.
// Feature handlers treat it as "stand down", not as a failure.
var ErrUnsupportedAdapter = errors.New("unsupported adapter platform")

// Strategy is the platform-specific operation set the features need.
type Strategy interface {
	// ExtractAudioBase64 fetches a voice message transcoded to mp3 and
	// returns its base64 payload, "" when unavailable. Never errors:
	// a missing voice degrades the conversation, it does not stop it.
	ExtractAudioBase64(ctx context.Context, fileID string) string

	// ForwardToPeer forwards an existing message to a user verbatim.
	ForwardToPeer(ctx context.Context, userID, messageID int64) error

	// ForwardToGroup forwards an existing message to a group verbatim and
	// returns the clone's id when the gateway reports one, 0 otherwise.
	ForwardToGroup(ctx context.Context, groupID, messageID int64) (int64, error)

	// LatestGroupMessageID resolves the id of the newest message in a
	// group, used to locate a just-forwarded copy.
	LatestGroupMessageID(ctx context.Context, groupID int64) (int64, bool)
}

// Router dispatches to the strategy registered for a platform.
type Router struct {
	strategies map[string]Strategy
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{strategies: make(map[string]Strategy)}
}

// Register binds a strategy to a platform name, replacing any previous one.
func (r *Router) Register(platform string, s Strategy) {
	r.strategies[platform] = s
}

// For returns the strategy for platform or ErrUnsupportedAdapter.
func (r *Router) For(platform string) (Strategy, error) {
	s, ok := r.strategies[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAdapter, platform)
	}
	return s, nil
}
