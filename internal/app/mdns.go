package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	mdnsServiceType = "_venuefinder._tcp"
	mdnsDomain      = "local."
)

// startMDNS advertises the HTTP facade so front-ends on the LAN can find it.
func (a *App) startMDNS(port int) error {
	if port <= 0 {
		return fmt.Errorf("invalid port %d", port)
	}

	a.stopMDNS()

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "venue-finder"
	}

	instance := sanitizeMDNSInstance(fmt.Sprintf("Venue Finder (%s)", hostname))

	txt := mdnsTXT(port, a.cfg.GFOnly, a.cfg.StaticLocation != nil, sanitizeMDNSHost(hostname))

	server, err := zeroconf.Register(instance, mdnsServiceType, mdnsDomain, port, txt, nil)
	if err != nil {
		return err
	}

	a.mdns = server
	a.logger.Info("mDNS advertisement started", "instance", instance, "port", port)
	return nil
}

func (a *App) stopMDNS() {
	if a.mdns == nil {
		return
	}

	a.mdns.Shutdown()
	a.logger.Info("mDNS advertisement stopped")
	a.mdns = nil
}

func mdnsTXT(port int, gfOnly, fixedLocation bool, hostLabel string) []string {
	hostFQDN := hostLabel
	if !strings.Contains(hostFQDN, ".") {
		hostFQDN = hostLabel + ".local"
	}

	location := "browser"
	if fixedLocation {
		location = "fixed"
	}

	return []string{
		fmt.Sprintf("http_port=%d", port),
		"api=/api",
		"events=ws",
		fmt.Sprintf("gf_only=%t", gfOnly),
		"location=" + location,
		"proto=v1",
		fmt.Sprintf("host=%s", hostFQDN),
	}
}

func sanitizeMDNSInstance(name string) string {
	cleaned := strings.TrimSpace(name)
	replacer := strings.NewReplacer("\n", " ", "\r", " ", ".", " ", "_", " ")
	cleaned = replacer.Replace(cleaned)
	if cleaned == "" {
		cleaned = "Venue Finder"
	}
	// Instance names are limited to 63 bytes.
	runes := []rune(cleaned)
	if len(runes) > 63 {
		cleaned = string(runes[:63])
	}
	return cleaned
}

func sanitizeMDNSHost(name string) string {
	cleaned := strings.TrimSpace(strings.ToLower(name))
	replacer := strings.NewReplacer(" ", "-", "_", "-", "\n", "", "\r", "")
	cleaned = replacer.Replace(cleaned)
	if cleaned == "" {
		cleaned = "venue-finder"
	}
	runes := []rune(cleaned)
	if len(runes) > 63 {
		cleaned = string(runes[:63])
	}
	return cleaned
}
