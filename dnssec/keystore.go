package dnssec

import (
	"math"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// keystore caches trust anchors and validated key material per zone.
// Validated DNSKEYs are kept for their TTL so repeated validations don't
// re-walk the chain of trust.
type keystore struct {
	store map[string]*keystoreItem
	mu    sync.RWMutex
	now   func() time.Time
}

type keystoreItem struct {
	keys *dnskeyset
	ds   *dsset
	mu   sync.RWMutex
}

type dnskeyset struct {
	expiry time.Time
	zsk    []*dns.DNSKEY
	ksk    []*dns.DNSKEY
}

type dsset struct {
	expiry time.Time
	ds     []*dns.DS
}

func newKeystore(now func() time.Time) *keystore {
	return &keystore{
		store: make(map[string]*keystoreItem),
		now:   now,
	}
}

func (s *keystore) addDS(name string, dss ...*dns.DS) {
	var ttl uint32 = math.MaxUint32
	for _, ds := range dss {
		if ds.Hdr.Ttl < ttl {
			ttl = ds.Hdr.Ttl
		}
	}
	item := s.getItem(name)
	item.mu.Lock()
	defer item.mu.Unlock()
	item.ds = &dsset{
		expiry: s.now().Add(time.Duration(ttl) * time.Second),
		ds:     dss,
	}
}

func (s *keystore) addDNSKEY(name string, keys []*dns.DNSKEY) {
	var (
		ttl uint32 = math.MaxUint32
		zsk []*dns.DNSKEY
		ksk []*dns.DNSKEY
	)
	for _, key := range keys {
		if key.Hdr.Ttl < ttl {
			ttl = key.Hdr.Ttl
		}
		switch key.Flags {
		case 257:
			ksk = append(ksk, key)
		case 256:
			zsk = append(zsk, key)
		}
	}
	item := s.getItem(name)
	item.mu.Lock()
	defer item.mu.Unlock()
	item.keys = &dnskeyset{
		expiry: s.now().Add(time.Duration(ttl) * time.Second),
		zsk:    zsk,
		ksk:    ksk,
	}
}

func (s *keystore) getDNSKEY(name string) (zsk, ksk []*dns.DNSKEY) {
	item := s.lookup(name)
	if item == nil {
		return nil, nil
	}
	item.mu.RLock()
	defer item.mu.RUnlock()
	if item.keys == nil || s.now().After(item.keys.expiry) {
		return nil, nil
	}
	return item.keys.zsk, item.keys.ksk
}

func (s *keystore) getDS(name string) []*dns.DS {
	item := s.lookup(name)
	if item == nil {
		return nil
	}
	item.mu.RLock()
	defer item.mu.RUnlock()
	if item.ds == nil || s.now().After(item.ds.expiry) {
		return nil
	}
	return item.ds.ds
}

func (s *keystore) lookup(name string) *keystoreItem {
	mk := dns.CanonicalName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store[mk]
}

// Returns the item for a zone, creating it if none exists yet.
func (s *keystore) getItem(name string) *keystoreItem {
	mk := dns.CanonicalName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.store[mk]
	if !ok {
		item = new(keystoreItem)
		s.store[mk] = item
	}
	return item
}
