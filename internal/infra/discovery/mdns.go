package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// ServiceType 是在局域网内广播的 mDNS 服务类型
const ServiceType = "_sharedcanvas._tcp"

// Advertiser 在局域网内广播画布服务，直到 Shutdown
type Advertiser struct {
	server *mdns.Server
}

// Advertise 以主机名为实例名广播服务，TXT 记录中附带默认房间
func Advertise(port int, defaultRoom string) (*Advertiser, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("discovery: could not get hostname: %w", err)
	}

	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, txtRecords(defaultRoom))
	if err != nil {
		return nil, fmt.Errorf("discovery: failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("discovery: failed to start mDNS server: %w", err)
	}
	logrus.WithFields(logrus.Fields{"instance": host, "port": port, "service": ServiceType}).Info("mDNS advertisement started")
	return &Advertiser{server: server}, nil
}

func (a *Advertiser) Shutdown() error {
	if a == nil || a.server == nil {
		return nil
	}
	return a.server.Shutdown()
}

// Peer 是一个被发现的画布服务
type Peer struct {
	Name        string
	Addr        string // host:port
	DefaultRoom string
}

// Browse 在 timeout 内查询局域网中的画布服务
func Browse(ctx context.Context, timeout time.Duration) ([]Peer, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	errCh := make(chan error, 1)
	go func() {
		errCh <- mdns.Query(params)
		close(entries)
	}()

	var peers []Peer
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return peers, <-errCh
			}
			if p, ok := peerFromEntry(e); ok {
				peers = append(peers, p)
			}
		case <-ctx.Done():
			return peers, ctx.Err()
		}
	}
}

func txtRecords(defaultRoom string) []string {
	return []string{"app=shared-canvas", "room=" + defaultRoom}
}

func peerFromEntry(e *mdns.ServiceEntry) (Peer, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Peer{}, false
	}
	p := Peer{Name: e.Name, Addr: fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port)}
	for _, field := range e.InfoFields {
		if room, ok := strings.CutPrefix(field, "room="); ok {
			p.DefaultRoom = room
		}
	}
	return p, true
}
