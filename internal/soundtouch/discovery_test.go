package soundtouch

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/tessro/stctl/internal/core"
)

func TestEntryToAddress(t *testing.T) {
	entry := zeroconf.NewServiceEntry("Kitchen", ServiceType, "local.")
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	entry.Port = 8090
	entry.Text = []string{"DESCRIPTION=SoundTouch", "MAC=AABBCCDDEEFF", "MODEL=SoundTouch 10"}

	addr, ok := entryToAddress(entry)
	if !ok {
		t.Fatal("entryToAddress() ok = false")
	}
	want := core.DeviceAddress{
		ID: "AABBCCDDEEFF", Name: "Kitchen", IP: "192.168.1.20", Port: 8090,
		Type: "SoundTouch 10", Model: "SoundTouch 10",
	}
	if addr != want {
		t.Errorf("entryToAddress() = %+v, want %+v", addr, want)
	}

	entry.AddrIPv4 = nil
	if _, ok := entryToAddress(entry); ok {
		t.Error("entry without addresses should be skipped")
	}
}

func TestDiscoveryCache(t *testing.T) {
	d := NewDiscovery(DiscoveryOptions{})
	d.Add(core.DeviceAddress{ID: "AA", Name: "Kitchen", IP: "10.0.0.1"})
	d.Add(core.DeviceAddress{ID: "BB", Name: "Office", IP: "10.0.0.2"})
	d.SetAlias("k", "Kitchen")

	tests := []struct {
		identifier string
		wantID     string
	}{
		{"AA", "AA"},
		{"office", "BB"},
		{"10.0.0.2", "BB"},
		{"K", "AA"},
	}
	for _, tt := range tests {
		got, ok := d.GetDevice(tt.identifier)
		if !ok || got.ID != tt.wantID {
			t.Errorf("GetDevice(%q) = %+v, want %s", tt.identifier, got, tt.wantID)
		}
	}
	if _, ok := d.GetDevice("garage"); ok {
		t.Error("GetDevice(garage) should miss")
	}
	if n := len(d.CachedDevices()); n != 2 {
		t.Errorf("CachedDevices() = %d, want 2", n)
	}
}

func TestScanIPs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<info deviceID="AABBCC"><name>Kitchen</name><type>SoundTouch 20</type></info>`))
	}))
	t.Cleanup(srv.Close)
	port := serverAddress(t, srv).Port

	d := NewDiscovery(DiscoveryOptions{Port: port, ProbeTimeout: 500 * time.Millisecond})
	found := d.ScanIPs(context.Background(), []string{"127.0.0.1", "127.0.0.2"})

	if len(found) != 1 {
		t.Fatalf("ScanIPs() found %d, want 1", len(found))
	}
	if found[0].ID != "AABBCC" || found[0].Name != "Kitchen" || found[0].Port != port {
		t.Errorf("ScanIPs() = %+v", found[0])
	}
	if _, ok := d.GetDevice("kitchen"); !ok {
		t.Error("scanned device should be cached")
	}
}

func TestScanRangeValidation(t *testing.T) {
	d := NewDiscovery(DiscoveryOptions{})
	ctx := context.Background()

	if _, err := d.ScanRange(ctx, netip.MustParseAddr("::1"), 1, 2); err == nil {
		t.Error("IPv6 base should be rejected")
	}
	if _, err := d.ScanRange(ctx, netip.MustParseAddr("10.0.0.1"), 10, 5); err == nil {
		t.Error("inverted range should be rejected")
	}
	if _, err := d.ScanPrefix(ctx, netip.MustParsePrefix("10.0.0.0/8")); err == nil {
		t.Error("/8 should be rejected")
	}
}
