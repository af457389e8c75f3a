package onebot

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Segment is one unit of a chat message: a text run, an image, a reply
// marker, a forward bundle and so on. Data carries the attributes the
// gateway attached; values may be strings or numbers depending on the
// gateway version.
type Segment struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Message is an ordered list of segments. On the wire it may appear either
// as a segment array or as a CQ-encoded string; both decode transparently.
type Message []Segment

// Text builds a plain text segment.
func Text(s string) Segment {
	return Segment{Type: "text", Data: map[string]interface{}{"text": s}}
}

// Str returns the first attribute among keys that stringifies non-empty.
func (s Segment) Str(keys ...string) string {
	for _, k := range keys {
		if v, ok := s.Data[k]; ok {
			if str := attrString(v); str != "" {
				return str
			}
		}
	}
	return ""
}

// Int returns the first attribute among keys that parses as an integer,
// or 0 when none does.
func (s Segment) Int(keys ...string) int64 {
	for _, k := range keys {
		if v, ok := s.Data[k]; ok {
			if n := toInt64(v); n != 0 {
				return n
			}
		}
	}
	return 0
}

func (m *Message) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = ParseCQ(s)
		return nil
	}
	var segs []Segment
	if err := json.Unmarshal(data, &segs); err != nil {
		return err
	}
	*m = Message(segs)
	return nil
}

// String renders the message in CQ encoding.
func (m Message) String() string {
	var b strings.Builder
	for _, seg := range m {
		if seg.Type == "text" {
			b.WriteString(escapeCQText(seg.Str("text")))
			continue
		}
		b.WriteString("[CQ:")
		b.WriteString(seg.Type)
		keys := make([]string, 0, len(seg.Data))
		for k := range seg.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(",")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(escapeCQValue(attrString(seg.Data[k])))
		}
		b.WriteString("]")
	}
	return b.String()
}

// PlainText concatenates the text segments, ignoring everything else.
func (m Message) PlainText() string {
	var b strings.Builder
	for _, seg := range m {
		if seg.Type == "text" {
			b.WriteString(seg.Str("text"))
		}
	}
	return b.String()
}

// Clone copies the message with fresh attribute maps so callers can mutate
// segments without aliasing the original.
func (m Message) Clone() Message {
	out := make(Message, len(m))
	for i, seg := range m {
		data := make(map[string]interface{}, len(seg.Data))
		for k, v := range seg.Data {
			data[k] = v
		}
		out[i] = Segment{Type: seg.Type, Data: data}
	}
	return out
}

var cqPattern = regexp.MustCompile(`\[CQ:([a-zA-Z0-9_.-]+)((?:,[^\[\]]*)*)\]`)

// ParseCQ decodes a CQ string into segments. Runs of plain text between
// CQ codes become text segments; malformed codes stay as literal text.
func ParseCQ(s string) Message {
	var msg Message
	last := 0
	for _, m := range cqPattern.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > last {
			if t := unescapeCQText(s[last:m[0]]); t != "" {
				msg = append(msg, Text(t))
			}
		}
		seg := Segment{Type: s[m[2]:m[3]], Data: map[string]interface{}{}}
		if m[4] >= 0 && m[5] > m[4] {
			for _, item := range strings.Split(s[m[4]:m[5]], ",") {
				if item == "" {
					continue
				}
				k, v, ok := strings.Cut(item, "=")
				if !ok || k == "" {
					continue
				}
				seg.Data[k] = unescapeCQValue(v)
			}
		}
		msg = append(msg, seg)
		last = m[1]
	}
	if last < len(s) {
		if t := unescapeCQText(s[last:]); t != "" {
			msg = append(msg, Text(t))
		}
	}
	return msg
}

// & must be first on escape and last on unescape, or entities double-convert.
func escapeCQText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "[", "&#91;")
	s = strings.ReplaceAll(s, "]", "&#93;")
	return s
}

func escapeCQValue(s string) string {
	return strings.ReplaceAll(escapeCQText(s), ",", "&#44;")
}

func unescapeCQText(s string) string {
	s = strings.ReplaceAll(s, "&#91;", "[")
	s = strings.ReplaceAll(s, "&#93;", "]")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}

func unescapeCQValue(s string) string {
	s = strings.ReplaceAll(s, "&#44;", ",")
	return unescapeCQText(s)
}

func attrString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

func toInt64(v interface{}) int64 {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case int:
		return int64(x)
	case int64:
		return x
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n
		}
	}
	return 0
}
