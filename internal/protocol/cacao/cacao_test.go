package cacao_test

import (
	"strings"
	"testing"

	"wcsign/internal/domain"
	"wcsign/internal/protocol/cacao"
)

func testAccount(t *testing.T) domain.Account {
	t.Helper()
	a, err := domain.ParseAccount("eip155:1:0x724d0D2DaD3fbB0C168f947B87Fa5DBe36F1A8bf")
	if err != nil {
		t.Fatalf("ParseAccount: %v", err)
	}
	return a
}

func TestRecap_RoundTrip(t *testing.T) {
	urn, err := cacao.NewRecap("eip155", []string{"personal_sign", "eth_sendTransaction"}).URN()
	if err != nil {
		t.Fatalf("URN: %v", err)
	}
	if !strings.HasPrefix(urn, "urn:recap:") {
		t.Fatalf("urn = %s", urn)
	}
	got := cacao.RecapMethods([]string{"ipfs://x", urn}, "eip155")
	if len(got) != 2 || got[0] != "eth_sendTransaction" || got[1] != "personal_sign" {
		t.Fatalf("methods = %v", got)
	}
}

func TestFormatMessage_Layout(t *testing.T) {
	urn, _ := cacao.NewRecap("eip155", []string{"personal_sign", "eth_sendTransaction"}).URN()
	p := domain.CacaoPayload{
		Domain:    "service.invalid",
		Aud:       "https://service.invalid/login",
		Version:   "1",
		Nonce:     "32891756",
		Iat:       "2021-09-30T16:25:24Z",
		Statement: "I accept the ServiceOrg Terms of Service: https://service.invalid/tos",
		Resources: []string{"ipfs://bafybeiemxf5abjwjbikoz4mc3a3dla6ual3jsgpdr4cjr3oz3evfyavhwq/", urn},
	}
	msg := cacao.FormatMessage(p, testAccount(t))

	wantPrefix := "service.invalid wants you to sign in with your Ethereum account:\n" +
		"0x724d0D2DaD3fbB0C168f947B87Fa5DBe36F1A8bf\n\n" +
		"I accept the ServiceOrg Terms of Service: https://service.invalid/tos " +
		"I further authorize the stated URI to perform the following actions on my behalf: " +
		"(1) 'request': 'eth_sendTransaction', 'personal_sign' for 'eip155'.\n\n" +
		"URI: https://service.invalid/login\n" +
		"Version: 1\n" +
		"Chain ID: 1\n" +
		"Nonce: 32891756\n" +
		"Issued At: 2021-09-30T16:25:24Z\n" +
		"Resources:\n- ipfs://bafybeiemxf5abjwjbikoz4mc3a3dla6ual3jsgpdr4cjr3oz3evfyavhwq/\n- "
	if !strings.HasPrefix(msg, wantPrefix) {
		t.Fatalf("message mismatch:\n%s\n---want prefix---\n%s", msg, wantPrefix)
	}
	if msg != cacao.FormatMessage(p, testAccount(t)) {
		t.Fatal("FormatMessage is not deterministic")
	}
}

func TestFormatMessage_NoStatement(t *testing.T) {
	p := domain.CacaoPayload{Domain: "d", Aud: "u", Version: "1", Nonce: "n", Iat: "i"}
	msg := cacao.FormatMessage(p, testAccount(t))
	if !strings.Contains(msg, "A8bf\n\nURI: u\n") {
		t.Fatalf("unexpected layout without statement:\n%s", msg)
	}
	if strings.HasSuffix(msg, "\n") {
		t.Fatal("message must not end with a newline")
	}
}
