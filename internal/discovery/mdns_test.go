package discovery

import (
	"net"
	"strings"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{
		ServiceName: "Test Server",
		Port:        8080,
	})
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	mgr.Stop()
}

func TestDefaultServiceName(t *testing.T) {
	if name := DefaultServiceName(); !strings.HasPrefix(name, "antirec") {
		t.Errorf("expected name to start with antirec, got %q", name)
	}
}

func TestFromEntry(t *testing.T) {
	server, ok := fromEntry(&mdns.ServiceEntry{
		Name:   "antirec on studio._antirec._tcp.local.",
		AddrV4: net.ParseIP("192.168.1.20"),
		Port:   8080,
	})
	if !ok {
		t.Fatal("expected entry to be accepted")
	}
	if server.URL() != "http://192.168.1.20:8080" {
		t.Errorf("unexpected URL %s", server.URL())
	}

	if _, ok := fromEntry(&mdns.ServiceEntry{Port: 8080}); ok {
		t.Error("expected entry without IPv4 address to be skipped")
	}
	if _, ok := fromEntry(nil); ok {
		t.Error("expected nil entry to be skipped")
	}
}
