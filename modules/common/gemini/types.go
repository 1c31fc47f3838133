package gemini

// PartKind tags the payload carried by a Part.
type PartKind int

const (
	PartText PartKind = iota + 1
	PartBlob
)

func (k PartKind) String() string {
	switch k {
	case PartText:
		return "text"
	case PartBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Part is one element of a request or a streamed chunk: either text or an
// inline binary blob with its media type.
type Part struct {
	Kind     PartKind
	Text     string
	MIMEType string
	Data     []byte
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// BlobPart builds an inline binary part.
func BlobPart(data []byte, mimeType string) Part {
	return Part{Kind: PartBlob, MIMEType: mimeType, Data: data}
}

// Request is an ordered list of parts sent as one user turn.
type Request struct {
	Parts []Part
}

// Chunk is one increment of a streamed response. A chunk with no parts is
// empty (no candidate, content or parts in the provider payload).
type Chunk struct {
	Parts []Part
}

// Empty reports whether the chunk carries nothing usable.
func (c Chunk) Empty() bool {
	return len(c.Parts) == 0
}

// FirstBlob returns the first binary part with data.
func (c Chunk) FirstBlob() (Part, bool) {
	for _, p := range c.Parts {
		if p.Kind == PartBlob && len(p.Data) > 0 {
			return p, true
		}
	}
	return Part{}, false
}

// Texts returns the chunk's text parts in order.
func (c Chunk) Texts() []string {
	var out []string
	for _, p := range c.Parts {
		if p.Kind == PartText && p.Text != "" {
			out = append(out, p.Text)
		}
	}
	return out
}
