package types

// Redirect carries deep-link targets of an app.
type Redirect struct {
	Native    string `json:"native,omitempty"`
	Universal string `json:"universal,omitempty"`
	LinkMode  bool   `json:"linkMode,omitempty"`
}

// AppMetadata describes a peer to the other side.
type AppMetadata struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Icons       []string  `json:"icons"`
	Redirect    *Redirect `json:"redirect,omitempty"`
}

// UniversalLink returns the advertised universal link, or "".
func (m AppMetadata) UniversalLink() string {
	if m.Redirect == nil {
		return ""
	}
	return m.Redirect.Universal
}

// SupportsLinkMode reports whether the app advertises link mode on a
// universal link.
func (m AppMetadata) SupportsLinkMode() bool {
	return m.Redirect != nil && m.Redirect.LinkMode && m.Redirect.Universal != ""
}

// Participant is one side of a pairing or session.
type Participant struct {
	PublicKey string      `json:"publicKey"`
	Metadata  AppMetadata `json:"metadata"`
}

// RelayProtocolOptions names the relay protocol a topic lives on.
type RelayProtocolOptions struct {
	Protocol string `json:"protocol"`
	Data     string `json:"data,omitempty"`
}
