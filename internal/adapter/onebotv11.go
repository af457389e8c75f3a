package adapter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
)

// OneBotV11 implements Strategy over the OneBot V11 API surface,
// including the NapCat extensions for single-message forwarding.
type OneBotV11 struct {
	api *onebot.API
}

// NewOneBotV11 wraps api in the OneBot V11 strategy.
func NewOneBotV11(api *onebot.API) *OneBotV11 {
	return &OneBotV11{api: api}
}

func (o *OneBotV11) ExtractAudioBase64(ctx context.Context, fileID string) string {
	if fileID == "" {
		return ""
	}
	data, err := o.api.GetRecord(ctx, fileID, "mp3")
	if err != nil {
		slog.Debug("voice download failed", "file", fileID, "error", err)
		return ""
	}
	// Some gateways hand back a data URL instead of bare base64.
	if i := strings.Index(data, "base64,"); i >= 0 {
		data = data[i+len("base64,"):]
	}
	return data
}

func (o *OneBotV11) ForwardToPeer(ctx context.Context, userID, messageID int64) error {
	return o.api.ForwardFriendSingleMsg(ctx, userID, messageID)
}

func (o *OneBotV11) ForwardToGroup(ctx context.Context, groupID, messageID int64) (int64, error) {
	return o.api.ForwardGroupSingleMsg(ctx, groupID, messageID)
}

func (o *OneBotV11) LatestGroupMessageID(ctx context.Context, groupID int64) (int64, bool) {
	msgs, err := o.api.GetGroupMsgHistory(ctx, groupID, 0, 1, true)
	if err != nil {
		slog.Debug("history lookup failed", "group_id", groupID, "error", err)
		return 0, false
	}
	if len(msgs) == 0 || msgs[0].MessageID == 0 {
		return 0, false
	}
	return msgs[0].MessageID, true
}
