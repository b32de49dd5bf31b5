// Best-effort host network reachability
package netstate

import (
	"net"

	"github.com/sirupsen/logrus"
)

// Reachability reports whether the host currently has a usable network.
// Answers are advisory: a true result does not guarantee a call succeeds.
type Reachability interface {
	IsReachable() bool
}

// Func adapts a function to Reachability
type Func func() bool

func (f Func) IsReachable() bool { return f() }

// Static always reports the same answer
func Static(reachable bool) Reachability {
	return Func(func() bool { return reachable })
}

// InterfaceProbe inspects the host network interfaces. The host counts as
// reachable when at least one interface is up, is not a loopback, and holds a
// global unicast address.
type InterfaceProbe struct {
	// Interfaces lists candidate interfaces; nil uses net.Interfaces.
	Interfaces func() ([]net.Interface, error)
	// Addrs lists addresses of an interface; nil uses (*net.Interface).Addrs.
	Addrs func(net.Interface) ([]net.Addr, error)
}

func (p InterfaceProbe) IsReachable() bool {
	list := p.Interfaces
	if list == nil {
		list = net.Interfaces
	}
	addrs := p.Addrs
	if addrs == nil {
		addrs = func(iface net.Interface) ([]net.Addr, error) { return iface.Addrs() }
	}

	ifaces, err := list()
	if err != nil {
		logrus.Debugf("Listing network interfaces failed: %v", err)
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ifAddrs, err := addrs(iface)
		if err != nil {
			logrus.Debugf("Listing addresses of %s failed: %v", iface.Name, err)
			continue
		}
		for _, addr := range ifAddrs {
			if ip := addrIP(addr); ip != nil && ip.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}

func addrIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPNet:
		return a.IP
	case *net.IPAddr:
		return a.IP
	}
	return nil
}
