package discovery

import (
	"errors"
	"fmt"
	"net"

	"github.com/hashicorp/mdns"

	"audiodev-manager/internal/logging"
)

// ServiceType is the DNS-SD type the control server is advertised under.
const ServiceType = "_audiodev._tcp"

// ErrLoopbackOnly is returned when the server only listens on loopback and
// there is nothing reachable to advertise.
var ErrLoopbackOnly = errors.New("server is bound to loopback; not advertising")

// Config holds advertisement settings.
// Host is the listen host: empty or unspecified means all interfaces.
type Config struct {
	ServiceName string
	Host        string
	Port        int
}

// Advertiser publishes the HTTP control server on the local network.
type Advertiser struct {
	config Config
	server *mdns.Server
}

// NewAdvertiser creates an advertiser; nothing is sent until Advertise.
func NewAdvertiser(config Config) *Advertiser {
	return &Advertiser{config: config}
}

// Advertise starts answering mDNS queries for the service.
func (a *Advertiser) Advertise() error {
	ips, err := advertiseIPs(a.config.Host)
	if err != nil {
		return err
	}

	service, err := mdns.NewMDNSService(
		a.config.ServiceName,
		ServiceType,
		"",
		"",
		a.config.Port,
		ips,
		[]string{"path=/api"},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}
	a.server = server

	logging.Infof("advertising %s as %s on port %d", a.config.ServiceName, ServiceType, a.config.Port)
	return nil
}

// Shutdown withdraws the advertisement.
func (a *Advertiser) Shutdown() error {
	if a.server == nil {
		return nil
	}
	err := a.server.Shutdown()
	a.server = nil
	return err
}

// advertiseIPs picks the addresses the server is actually reachable on.
func advertiseIPs(host string) ([]net.IP, error) {
	if host == "" {
		return interfaceIPs()
	}
	var candidates []net.IP
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsUnspecified() {
			return interfaceIPs()
		}
		candidates = []net.IP{ip}
	} else {
		resolved, err := net.LookupIP(host)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", host, err)
		}
		candidates = resolved
	}

	var ips []net.IP
	for _, ip := range candidates {
		if !ip.IsLoopback() {
			ips = append(ips, ip)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w (%s)", ErrLoopbackOnly, host)
	}
	return ips, nil
}

func interfaceIPs() ([]net.IP, error) {
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}
	return ips, nil
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}
