package relay

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// DefaultPortScan is how many ports after the preferred one are tried.
const DefaultPortScan = 20

// listenFirstFree binds the preferred port or, if it is taken, the next
// free one within scan ports. Binding directly avoids a probe-then-listen
// race. Port 0 asks the kernel for any free port.
func listenFirstFree(host string, preferred, scan int) (net.Listener, int, error) {
	if preferred == 0 {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
		if err != nil {
			return nil, 0, err
		}
		return ln, ln.Addr().(*net.TCPAddr).Port, nil
	}
	if scan < 0 {
		scan = 0
	}

	var errs []error
	for p := preferred; p <= preferred+scan && p <= 65535; p++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err == nil {
			return ln, p, nil
		}
		errs = append(errs, err)
	}
	return nil, 0, fmt.Errorf("no free port in %d-%d: %w", preferred, min(preferred+scan, 65535), errors.Join(errs...))
}

// advertisedHosts lists the addresses an agent could use to reach a relay
// bound to host. Unspecified binds expand to loopback plus every non-loopback
// IPv4 interface address.
func advertisedHosts(host string) []string {
	ip := net.ParseIP(host)
	if host != "" && (ip == nil || !ip.IsUnspecified()) {
		return []string{host}
	}
	out := []string{"127.0.0.1"}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() || ipn.IP.To4() == nil {
			continue
		}
		out = append(out, ipn.IP.String())
	}
	return out
}

func baseURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}
