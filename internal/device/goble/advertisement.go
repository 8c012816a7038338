package goble

import (
	"github.com/go-ble/ble"

	"github.com/xevox/wearlink/internal/device"
)

// bleAdvertisement wraps ble.Advertisement to implement device.Advertisement
type bleAdvertisement struct {
	adv ble.Advertisement
}

func newAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &bleAdvertisement{adv: adv}
}

// ID and Addr are the same on go-ble: the platform identifier is the
// peripheral address (a UUID on Darwin, a MAC elsewhere).
func (a *bleAdvertisement) ID() string        { return a.adv.Addr().String() }
func (a *bleAdvertisement) Addr() string      { return a.adv.Addr().String() }
func (a *bleAdvertisement) LocalName() string { return a.adv.LocalName() }
func (a *bleAdvertisement) RSSI() int         { return a.adv.RSSI() }
func (a *bleAdvertisement) Connectable() bool { return a.adv.Connectable() }
