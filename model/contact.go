package model

// Contact is one recipient of a campaign. Phone holds digits only once queued.
type Contact struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// Attachment is an opaque media reference produced by the upload collaborator.
type Attachment struct {
	Id   string `json:"id"`
	Name string `json:"name"`
	Url  string `json:"url"`
	Path string `json:"path"`
}

// Payload is a single transmission handed to a transport.
// Exactly one of Text or Media is meaningful; Caption only accompanies Media.
type Payload struct {
	Text    string
	Media   *Attachment
	Caption string
}

func (p Payload) IsMedia() bool {
	return p.Media != nil
}
