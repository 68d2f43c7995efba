package config

import (
	"net"

	"github.com/activecm/rcr/util"
)

// Filter separates the caller's own network from the outside world based on
// the user configuration
type Filter struct {
	// subnets do not need a validate tag because they are validated
	// when they are parsed
	InternalSubnetsJSON []string `json:"internal_subnets"`
	InternalSubnets     []*net.IPNet
}

// parseSubnets parses the subnet strings from the config file into
// net.IPNet objects
func (fs *Filter) parseSubnets() error {
	internalSubnetList, err := util.ParseSubnets(fs.InternalSubnetsJSON)
	if err != nil {
		return err
	}
	fs.InternalSubnets = internalSubnetList

	return nil
}

// CheckIfInternal returns true if a given host is inside one of the
// configured internal subnets
func (fs *Filter) CheckIfInternal(host net.IP) bool {
	return util.ContainsIP(fs.InternalSubnets, host)
}
