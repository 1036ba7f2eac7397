package slack

// Response types for slash-command replies.
const (
	ResponseEphemeral = "ephemeral"
	ResponseInChannel = "in_channel"
)

// UnresolvableAddressText is sent when the geocoder cannot resolve the query.
const UnresolvableAddressText = "Sorry, I don’t understand that address."

// Message is a slash-command response body.
type Message struct {
	Text         string       `json:"text,omitempty"`
	ResponseType string       `json:"response_type"`
	Attachments  []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Fallback string  `json:"fallback"`
	Color    string  `json:"color"`
	Pretext  string  `json:"pretext"`
	Fields   []Field `json:"fields"`
	ThumbURL string  `json:"thumb_url,omitempty"`
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Ephemeral returns a plain text reply visible only to the requester.
func Ephemeral(text string) Message {
	return Message{Text: text, ResponseType: ResponseEphemeral}
}
