package device

import (
	"github.com/tphakala/audiohal/pkg/hal"
)

// Info is a point-in-time description of a device. Fields that could not be
// read are left at their zero value.
type Info struct {
	UID            string
	Name           string
	ModelUID       string
	Transport      string
	InputChannels  int
	OutputChannels int
	NominalRate    float64
	MinRate        float64
	MaxRate        float64
	DefaultInput   bool
	DefaultOutput  bool
}

// IsInput reports whether the device had capture channels.
func (i Info) IsInput() bool { return i.InputChannels > 0 }

// IsOutput reports whether the device had playback channels.
func (i Info) IsOutput() bool { return i.OutputChannels > 0 }

// Describe collects every readable property of the device. Only a failure to
// resolve the UID is returned as an error.
func (d *Directory) Describe(uid string) (Info, error) {
	if _, err := d.Resolve(uid, hal.ScopeGlobal); err != nil {
		return Info{}, err
	}

	info := Info{UID: uid}
	info.Name, _ = d.Name(uid)
	info.ModelUID, _ = d.ModelUID(uid)
	info.Transport, _ = d.TransportType(uid)
	info.InputChannels = max(d.CountChannels(uid, hal.ScopeInput), 0)
	info.OutputChannels = max(d.CountChannels(uid, hal.ScopeOutput), 0)
	info.NominalRate, _ = d.NominalSampleRate(uid)
	info.MinRate, info.MaxRate, _ = d.AvailableSampleRates(uid)

	if def, err := d.DefaultInputUID(); err == nil {
		info.DefaultInput = def == uid
	}
	if def, err := d.DefaultOutputUID(); err == nil {
		info.DefaultOutput = def == uid
	}
	return info, nil
}

// List describes every present device. Devices that disappear while the list
// is being built are omitted.
func (d *Directory) List() ([]Info, error) {
	uids, err := d.UIDs()
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(uids))
	for _, uid := range uids {
		info, err := d.Describe(uid)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}
