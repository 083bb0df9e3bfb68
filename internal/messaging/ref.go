package messaging

// Ref points at a message in a text channel.
type Ref struct {
	ChannelID string
	MessageID string
}

// Zero reports whether r points nowhere.
func (r Ref) Zero() bool { return r.MessageID == "" }
