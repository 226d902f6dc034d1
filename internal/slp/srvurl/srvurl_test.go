package srvurl

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want URL
	}{
		{"service:printer.x://192.168.100.2:4563/hello/good/world",
			URL{Type: "service:printer.x", Host: "192.168.100.2", Port: 4563, Remainder: "/hello/good/world"}},
		{"service:printer.x://192.168.100.2:4563",
			URL{Type: "service:printer.x", Host: "192.168.100.2", Port: 4563}},
		{"service:printer.x://192.168.100.2",
			URL{Type: "service:printer.x", Host: "192.168.100.2"}},
		{"service:directory-agent://[fe80::1]:427",
			URL{Type: "service:directory-agent", Host: "fe80::1", Port: 427}},
		{"service:ftp:///path",
			URL{Type: "service:ftp", Remainder: "/path"}},
		{"service:x://host;attr=1",
			URL{Type: "service:x", Host: "host", Remainder: ";attr=1"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("service:badurl")
	assert.ErrorIs(t, err, ErrNoScheme)

	_, err = Parse("service:x://host:99999")
	assert.ErrorIs(t, err, ErrBadPort)

	_, err = Parse("service:x://[fe80::1")
	assert.ErrorIs(t, err, ErrNoHost)
}

func TestString_RoundTrip(t *testing.T) {
	for _, s := range []string{
		"service:printer.x://192.168.100.2:4563/hello",
		"service:directory-agent://[fe80::1]:427",
		"service:x://host",
	} {
		u, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, u.String())
	}
}

func TestResolve_Literal(t *testing.T) {
	u, err := Parse("service:directory-agent://10.0.0.5")
	require.NoError(t, err)

	ap, err := u.Resolve(context.Background(), 427)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.5:427"), ap)

	u.Host = ""
	_, err = u.Resolve(context.Background(), 427)
	assert.ErrorIs(t, err, ErrNoHost)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("service:ftp://host"))
	assert.True(t, Valid("SERVICE:ftp://host"))
	assert.False(t, Valid("http://host"))
	assert.False(t, Valid("service:ftp"))
}
