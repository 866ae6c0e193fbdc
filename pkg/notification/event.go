// SPDX-FileCopyrightText: 2024 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package notification

import (
	"encoding/json"
	"fmt"
)

// Kind is the event-bus category an event is published under.
type Kind string

// KindNoticeMessage carries user-facing notifications.
const KindNoticeMessage Kind = "notice.message"

// Image is the image attached to an event. Ref holds a URL, a file path or a
// base64 data URI; Data holds raw bytes. Both empty means no image.
type Image struct {
	Ref  string
	Data []byte
}

func (i Image) Empty() bool {
	return i.Ref == "" && len(i.Data) == 0
}

// Event is a single notice produced by the host.
type Event struct {
	Type    string
	Title   string
	Text    string
	Image   Image
	UserID  string
	Channel string
}

// payload is the wire shape of an Event.
type payload struct {
	Type    string `json:"type,omitempty"`
	Title   string `json:"title,omitempty"`
	Text    string `json:"text,omitempty"`
	Image   string `json:"image,omitempty"`
	UserID  string `json:"userid,omitempty"`
	Channel string `json:"channel,omitempty"`
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("decode notification payload: %w", err)
	}
	*e = Event{
		Type:    p.Type,
		Title:   p.Title,
		Text:    p.Text,
		Image:   Image{Ref: p.Image},
		UserID:  p.UserID,
		Channel: p.Channel,
	}
	return nil
}

// MarshalJSON emits the wire shape. Raw image bytes are not representable on
// the wire and are dropped.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(payload{
		Type:    e.Type,
		Title:   e.Title,
		Text:    e.Text,
		Image:   e.Image.Ref,
		UserID:  e.UserID,
		Channel: e.Channel,
	})
}

// FromMap builds an Event from a loosely typed host payload. The image value
// may be a string reference or a byte slice.
func FromMap(m map[string]any) (Event, error) {
	var ev Event
	var err error
	str := func(key string) string {
		v, ok := m[key]
		if !ok || v == nil {
			return ""
		}
		s, ok := v.(string)
		if !ok {
			if err == nil {
				err = fmt.Errorf("payload key %q: expected string, got %T", key, v)
			}
			return ""
		}
		return s
	}
	ev.Type = str("type")
	ev.Title = str("title")
	ev.Text = str("text")
	ev.UserID = str("userid")
	ev.Channel = str("channel")

	switch img := m["image"].(type) {
	case nil:
	case string:
		ev.Image.Ref = img
	case []byte:
		ev.Image.Data = img
	default:
		if err == nil {
			err = fmt.Errorf("payload key %q: unsupported type %T", "image", img)
		}
	}
	return ev, err
}
