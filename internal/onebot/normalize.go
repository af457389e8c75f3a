package onebot

import "fmt"

const emptyContentText = "（空内容）"

// NormalizeContent coerces loosely-typed content (CQ strings, segment maps
// from API results, already-built messages) into a sendable Message. Values
// that have no segment shape are JSON-encoded into a text segment so the
// caller always gets something displayable; empty input becomes a text
// segment reading （空内容）.
func NormalizeContent(v interface{}) Message {
	switch x := v.(type) {
	case nil:
		return Message{Text(emptyContentText)}
	case string:
		if x == "" {
			return Message{Text(emptyContentText)}
		}
		return NormalizeSendable(ParseCQ(x))
	case Message:
		if len(x) == 0 {
			return Message{Text(emptyContentText)}
		}
		return NormalizeSendable(x.Clone())
	case []Segment:
		return NormalizeContent(Message(x))
	case Segment:
		return NormalizeSendable(Message{x}.Clone())
	case map[string]interface{}:
		if seg, ok := segmentFromMap(x); ok {
			return NormalizeSendable(Message{seg})
		}
		return Message{Text(jsonText(x))}
	case []interface{}:
		if len(x) == 0 {
			return Message{Text(emptyContentText)}
		}
		segs := make(Message, 0, len(x))
		for _, item := range x {
			im, ok := item.(map[string]interface{})
			if !ok {
				return Message{Text(jsonText(x))}
			}
			seg, ok := segmentFromMap(im)
			if !ok {
				return Message{Text(jsonText(x))}
			}
			segs = append(segs, seg)
		}
		return NormalizeSendable(segs)
	default:
		return Message{Text(jsonText(v))}
	}
}

// NormalizeSendable fills the file attribute from url on media segments
// that lack it. Gateways resolve media by file first; a url-only segment
// built locally would otherwise fail to send. Mutates and returns m.
func NormalizeSendable(m Message) Message {
	for i, seg := range m {
		switch seg.Type {
		case "image", "video", "file":
			if seg.Str("file") == "" {
				if url := seg.Str("url"); url != "" {
					if m[i].Data == nil {
						m[i].Data = map[string]interface{}{}
					}
					m[i].Data["file"] = url
				}
			}
		}
	}
	return m
}

// ExtractForwardIDs collects resolvable ids from forward segments. The id
// key drifted across gateway versions, so several are probed.
func ExtractForwardIDs(m Message) []string {
	var ids []string
	for _, seg := range m {
		if seg.Type != "forward" {
			continue
		}
		if id := seg.Str("id", "forward_id", "res_id", "file"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ExtractSenderID pulls a numeric user id out of a raw sender map, probing
// the key spellings different gateways use.
func ExtractSenderID(sender map[string]interface{}) int64 {
	for _, k := range []string{"user_id", "uin", "qq", "id", "uid", "userId"} {
		if v, ok := sender[k]; ok {
			if id := toInt64(v); id != 0 {
				return id
			}
		}
	}
	return 0
}

// SenderDisplayName prefers the group card over the nickname, returning ""
// when neither is present.
func SenderDisplayName(sender map[string]interface{}) string {
	for _, k := range []string{"card", "nickname"} {
		if v, ok := sender[k]; ok {
			if s := attrString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// ReplyTargetID extracts the quoted message id from a reply segment.
func ReplyTargetID(seg Segment) int64 {
	return seg.Int("id", "message_id", "messageId")
}

func segmentFromMap(m map[string]interface{}) (Segment, bool) {
	t, _ := m["type"].(string)
	if t == "" {
		return Segment{}, false
	}
	data, _ := m["data"].(map[string]interface{})
	seg := Segment{Type: t, Data: map[string]interface{}{}}
	for k, v := range data {
		seg.Data[k] = v
	}
	return seg, true
}

func jsonText(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
