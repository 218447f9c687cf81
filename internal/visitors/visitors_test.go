package visitors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyChannel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		referrer string
		want     Channel
	}{
		{"empty is direct", "", ChannelDirect},
		{"whitespace is direct", "   ", ChannelDirect},
		{"google search", "https://www.google.com/search?q=seo", ChannelSearch},
		{"bing search", "https://bing.com/", ChannelSearch},
		{"duckduckgo", "https://duckduckgo.com", ChannelSearch},
		{"linkedin social", "https://www.linkedin.com/feed/", ChannelSocial},
		{"x social", "https://x.com/somebody/status/1", ChannelSocial},
		{"reddit social", "https://old.reddit.com/r/seo", ChannelSocial},
		{"plain referral", "https://partner-blog.example.net/post", ChannelReferral},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ClassifyChannel(tc.referrer))
		})
	}
}

func TestIsBot(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBot(""))
	assert.True(t, IsBot("Mozilla/5.0 (compatible; Googlebot/2.1)"))
	assert.True(t, IsBot("AhrefsBot/7.0"))
	assert.True(t, IsBot("curl/8.4.0"))
	assert.True(t, IsBot("HeadlessChrome/120.0"))
	assert.False(t, IsBot("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Safari/605.1.15"))
}

func TestCompanyFromHostname(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		hostname string
		want     string
	}{
		{"corporate hostname", "gw1.acme-widgets.com", "Acme Widgets"},
		{"trailing dot", "mail.contoso.com.", "Contoso"},
		{"two-part suffix", "fw.bigbank.co.uk", "Bigbank"},
		{"consumer isp", "c-73-158-1-1.hsd1.ca.comcast.net", ""},
		{"cloud range", "ec2-3-8-1-1.eu-west-2.compute.amazonaws.com", ""},
		{"numeric label", "gw.12345.net", ""},
		{"empty", "", ""},
		{"single label", "localhost", ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, CompanyFromHostname(tc.hostname))
		})
	}
}

func TestEnrich(t *testing.T) {
	t.Parallel()

	got := Enrich(Session{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0",
		Referrer:  "https://www.google.com/",
		Hostname:  "vpn.acme.com",
	})
	assert.Equal(t, ChannelSearch, got.Channel)
	assert.False(t, got.IsBot)
	assert.Equal(t, "Acme", got.CompanyGuess)
}
