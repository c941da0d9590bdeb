// Package ipalloc issues sequential IPv4 host addresses from a CIDR block
// for bulk reconfiguration campaigns.
//
// The allocator never materializes the host list; positions map to
// addresses arithmetically, so /8 blocks cost the same as /24.
//
//	alloc, err := ipalloc.New("192.168.1.100", "255.255.255.0")
//	ip, err := alloc.Next()       // 192.168.1.100
//	if applyFailed {
//	    alloc.RecycleLast()       // next call returns 192.168.1.100 again
//	}
package ipalloc
