package pairing

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wcsign/internal/domain"
)

const (
	uriScheme      = "wc"
	uriVersion     = "2"
	relayProtocol  = "irn"
	paramRelay     = "relay-protocol"
	paramRelayData = "relay-data"
	paramSymKey    = "symKey"
	paramExpiry    = "expiryTimestamp"
	paramMethods   = "methods"
)

// URI is the decoded form of a pairing link.
type URI struct {
	Topic   domain.Topic
	Version string
	SymKey  domain.SymmetricKey
	Relay   domain.RelayProtocolOptions
	Expiry  time.Time
	Methods []string
}

// String renders the URI in the canonical parameter order.
func (u URI) String() string {
	var b strings.Builder
	b.WriteString(uriScheme + ":" + u.Topic.String() + "@" + u.Version)
	b.WriteString("?" + paramRelay + "=" + url.QueryEscape(u.Relay.Protocol))
	if u.Relay.Data != "" {
		b.WriteString("&" + paramRelayData + "=" + url.QueryEscape(u.Relay.Data))
	}
	b.WriteString("&" + paramSymKey + "=" + u.SymKey.Hex())
	b.WriteString("&" + paramExpiry + "=" + strconv.FormatInt(u.Expiry.Unix(), 10))
	if len(u.Methods) > 0 {
		b.WriteString("&" + paramMethods + "=" + strings.Join(u.Methods, ","))
	}
	return b.String()
}

// ParseURI decodes a pairing link. Errors wrap domain.ErrInvalidURI.
func ParseURI(raw string) (URI, error) {
	bad := func(format string, args ...any) (URI, error) {
		return URI{}, fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidURI}, args...)...)
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return bad("%v", err)
	}
	if u.Scheme != uriScheme || u.Opaque == "" {
		return bad("not a %s: uri", uriScheme)
	}
	topic, version, ok := strings.Cut(u.Opaque, "@")
	if !ok || topic == "" || version == "" {
		return bad("missing topic or version")
	}
	if version != uriVersion {
		return bad("unsupported version %q", version)
	}

	q := u.Query()
	out := URI{
		Topic:   domain.Topic(topic),
		Version: version,
		Relay:   domain.RelayProtocolOptions{Protocol: q.Get(paramRelay), Data: q.Get(paramRelayData)},
	}
	if out.Relay.Protocol == "" {
		return bad("missing %s", paramRelay)
	}
	out.SymKey, err = domain.ParseSymmetricKey(q.Get(paramSymKey))
	if err != nil {
		return bad("symKey: %v", err)
	}
	if ts := q.Get(paramExpiry); ts != "" {
		secs, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return bad("expiryTimestamp: %v", err)
		}
		out.Expiry = time.Unix(secs, 0)
	}
	if m := q.Get(paramMethods); m != "" {
		for _, method := range strings.Split(strings.Trim(m, "[]"), ",") {
			if method = strings.TrimSpace(method); method != "" {
				out.Methods = append(out.Methods, method)
			}
		}
	}
	return out, nil
}
