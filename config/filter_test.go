package config

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckIfInternal(t *testing.T) {
	defaultSubnets := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8"}

	tests := []struct {
		name     string
		subnets  []string
		ip       string
		expected bool
	}{
		{name: "Class A Private", subnets: defaultSubnets, ip: "10.1.2.3", expected: true},
		{name: "Class B Private", subnets: defaultSubnets, ip: "172.16.0.1", expected: true},
		{name: "Outside Class B Private Range", subnets: defaultSubnets, ip: "172.32.0.1", expected: false},
		{name: "Class C Private", subnets: defaultSubnets, ip: "192.168.50.1", expected: true},
		{name: "Loopback", subnets: defaultSubnets, ip: "127.0.0.1", expected: true},
		{name: "Public Address", subnets: defaultSubnets, ip: "165.227.88.15", expected: false},
		{name: "IPv6 Loopback Without IPv6 Subnets", subnets: defaultSubnets, ip: "::1", expected: false},
		{name: "IPv6 Unique Local", subnets: []string{"fd00::/8"}, ip: "fd12:3456::1", expected: true},
		{name: "Single Host Subnet", subnets: []string{"13.37.13.37"}, ip: "13.37.13.37", expected: true},
		{name: "No Subnets Configured", subnets: nil, ip: "10.1.2.3", expected: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			filter := Filter{InternalSubnetsJSON: test.subnets}
			err := filter.parseSubnets()
			require.NoError(err, "parsing subnets should not produce an error")

			require.Equal(test.expected, filter.CheckIfInternal(net.ParseIP(test.ip)), "internal check should match for %s", test.ip)
		})
	}
}

func TestParseSubnetsInvalidEntry(t *testing.T) {
	require := require.New(t)

	filter := Filter{InternalSubnetsJSON: []string{"10.0.0.0/8", "300.300.300.300/8"}}
	err := filter.parseSubnets()
	require.Error(err, "an invalid subnet entry should fail to parse")
	require.ErrorContains(err, "error parsing entry", "error should identify the parse failure")
}
