// Package pubsub decodes push-notification envelopes delivered to the Gmail
// webhook. The outer JSON is validated against a JSON Schema; the inner
// payload is base64-encoded JSON carrying the mailbox and history id.
package pubsub

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrMalformed is returned (wrapped) for any envelope that cannot be used.
var ErrMalformed = errors.New("malformed push envelope")

// AttrGmailMessageID is the attribute naming the message to fetch.
const AttrGmailMessageID = "gmail_message_id"

const schemaURL = "https://rfi-tracker.local/schemas/push-envelope.json"

const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["message"],
  "properties": {
    "message": {
      "type": "object",
      "required": ["data"],
      "properties": {
        "data":        {"type": "string", "minLength": 1},
        "messageId":   {"type": "string"},
        "message_id":  {"type": "string"},
        "publishTime": {"type": "string"},
        "attributes":  {"type": "object", "additionalProperties": {"type": "string"}}
      }
    },
    "subscription": {"type": "string"}
  }
}`

// Message is the envelope's message member.
type Message struct {
	Data        string            `json:"data"`
	MessageID   string            `json:"messageId"`
	PublishTime string            `json:"publishTime"`
	Attributes  map[string]string `json:"attributes"`
}

// Notification is the decoded inner payload.
type Notification struct {
	EmailAddress string      `json:"emailAddress"`
	HistoryID    json.Number `json:"historyId"`
}

// Envelope is a decoded push delivery.
type Envelope struct {
	Message      Message `json:"message"`
	Subscription string  `json:"subscription"`

	Notification Notification `json:"-"`
}

// GmailMessageID returns the id of the message to fetch, or "".
func (e *Envelope) GmailMessageID() string {
	if e == nil || e.Message.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(e.Message.Attributes[AttrGmailMessageID])
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchema))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Decode validates body and decodes the inner notification. Every failure
// wraps ErrMalformed.
func Decode(body []byte) (*Envelope, error) {
	sch, err := compiled()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformed, err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	raw, err := decodeBase64(env.Message.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: message.data is not valid base64", ErrMalformed)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&env.Notification); err != nil {
		return nil, fmt.Errorf("%w: message.data does not hold a JSON object", ErrMalformed)
	}
	return &env, nil
}

// Push payloads use standard base64; URL-safe and unpadded forms are accepted.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("invalid base64")
}
