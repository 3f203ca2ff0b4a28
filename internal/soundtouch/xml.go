package soundtouch

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/tessro/stctl/internal/core"
)

// Wire representations of the device XML documents.

type infoXML struct {
	XMLName    xml.Name `xml:"info"`
	DeviceID   string   `xml:"deviceID,attr"`
	Name       string   `xml:"name"`
	Type       string   `xml:"type"`
	AccountID  string   `xml:"margeAccountUUID"`
	Components []struct {
		Category        string `xml:"componentCategory"`
		SoftwareVersion string `xml:"softwareVersion"`
		SerialNumber    string `xml:"serialNumber"`
	} `xml:"components>component"`
	Networks []struct {
		Type       string `xml:"type,attr"`
		MACAddress string `xml:"macAddress"`
		IPAddress  string `xml:"ipAddress"`
	} `xml:"networkInfo"`
}

func (x *infoXML) toCore() *core.DeviceInfo {
	info := &core.DeviceInfo{
		DeviceID:  x.DeviceID,
		Name:      x.Name,
		Type:      x.Type,
		AccountID: x.AccountID,
	}
	for _, c := range x.Components {
		info.Components = append(info.Components, core.Component{
			Category:        c.Category,
			SoftwareVersion: c.SoftwareVersion,
			SerialNumber:    c.SerialNumber,
		})
	}
	for _, n := range x.Networks {
		info.Networks = append(info.Networks, core.NetworkInfo{
			Type:       n.Type,
			MACAddress: n.MACAddress,
			IPAddress:  n.IPAddress,
		})
	}
	return info
}

type volumeXML struct {
	XMLName xml.Name `xml:"volume"`
	Target  string   `xml:"targetvolume"`
	Actual  string   `xml:"actualvolume"`
	Muted   string   `xml:"muteenabled"`
}

func (x *volumeXML) toCore() *core.Volume {
	return &core.Volume{
		Target: atoi(x.Target),
		Actual: atoi(x.Actual),
		Muted:  strings.TrimSpace(x.Muted) == "true",
	}
}

type bassCapabilitiesXML struct {
	XMLName   xml.Name `xml:"bassCapabilities"`
	Available string   `xml:"bassAvailable"`
	Min       string   `xml:"bassMin"`
	Max       string   `xml:"bassMax"`
	Default   string   `xml:"bassDefault"`
}

type bassXML struct {
	XMLName xml.Name `xml:"bass"`
	Target  string   `xml:"targetbass"`
	Actual  string   `xml:"actualbass"`
}

type contentItemXML struct {
	XMLName      xml.Name `xml:"ContentItem"`
	Source       string   `xml:"source,attr"`
	Location     string   `xml:"location,attr,omitempty"`
	Account      string   `xml:"sourceAccount,attr,omitempty"`
	IsPresetable string   `xml:"isPresetable,attr,omitempty"`
	Name         string   `xml:"itemName,omitempty"`
}

func (x *contentItemXML) toCore() core.ContentItem {
	return core.ContentItem{
		Source:       x.Source,
		Location:     x.Location,
		Account:      x.Account,
		IsPresetable: x.IsPresetable == "true",
		Name:         x.Name,
	}
}

func contentItemFromCore(c core.ContentItem) contentItemXML {
	x := contentItemXML{
		Source:   c.Source,
		Location: c.Location,
		Account:  c.Account,
		Name:     c.Name,
	}
	if c.IsPresetable {
		x.IsPresetable = "true"
	}
	return x
}

type nowPlayingXML struct {
	XMLName  xml.Name        `xml:"nowPlaying"`
	DeviceID string          `xml:"deviceID,attr"`
	Source   string          `xml:"source,attr"`
	Content  *contentItemXML `xml:"ContentItem"`
	Track    string          `xml:"track"`
	Artist   string          `xml:"artist"`
	Album    string          `xml:"album"`
	Station  string          `xml:"stationName"`
	Art      *struct {
		Status string `xml:"artImageStatus,attr"`
		URL    string `xml:",chardata"`
	} `xml:"art"`
	PlayStatus      string `xml:"playStatus"`
	Description     string `xml:"description"`
	StationLocation string `xml:"stationLocation"`
	Shuffle         string `xml:"shuffleSetting"`
	Repeat          string `xml:"repeatSetting"`
}

func (x *nowPlayingXML) toCore() *core.NowPlaying {
	np := &core.NowPlaying{
		DeviceID:        x.DeviceID,
		Source:          x.Source,
		Track:           strings.TrimSpace(x.Track),
		Artist:          strings.TrimSpace(x.Artist),
		Album:           strings.TrimSpace(x.Album),
		StationName:     strings.TrimSpace(x.Station),
		Description:     strings.TrimSpace(x.Description),
		StationLocation: strings.TrimSpace(x.StationLocation),
		PlayStatus:      core.PlayStatus(strings.TrimSpace(x.PlayStatus)),
		ShuffleSetting:  x.Shuffle,
		RepeatSetting:   x.Repeat,
	}
	if np.PlayStatus == "" {
		np.PlayStatus = core.PlayStatusInvalid
	}
	if x.Content != nil {
		c := x.Content.toCore()
		np.Content = &c
	}
	if x.Art != nil {
		np.ArtURL = strings.TrimSpace(x.Art.URL)
		np.ArtStatus = x.Art.Status
	}
	return np
}

type presetsXML struct {
	XMLName xml.Name `xml:"presets"`
	Presets []struct {
		ID        string         `xml:"id,attr"`
		CreatedOn string         `xml:"createdOn,attr"`
		UpdatedOn string         `xml:"updatedOn,attr"`
		Content   contentItemXML `xml:"ContentItem"`
	} `xml:"preset"`
}

func (x *presetsXML) toCore() []core.Preset {
	presets := make([]core.Preset, 0, len(x.Presets))
	for _, p := range x.Presets {
		presets = append(presets, core.Preset{
			Slot:      atoi(p.ID),
			Content:   p.Content.toCore(),
			CreatedAt: unixTime(p.CreatedOn),
			UpdatedAt: unixTime(p.UpdatedOn),
		})
	}
	return presets
}

type sourcesXML struct {
	XMLName xml.Name `xml:"sources"`
	Items   []struct {
		Source  string `xml:"source,attr"`
		Account string `xml:"sourceAccount,attr"`
		Status  string `xml:"status,attr"`
		Name    string `xml:",chardata"`
	} `xml:"sourceItem"`
}

type capabilitiesXML struct {
	XMLName      xml.Name `xml:"capabilities"`
	Capabilities []struct {
		Name string `xml:"name,attr"`
		URL  string `xml:"url,attr"`
		Info string `xml:"info,attr"`
	} `xml:"capability"`
}

type keyXML struct {
	XMLName xml.Name `xml:"key"`
	State   string   `xml:"state,attr"`
	Sender  string   `xml:"sender,attr"`
	Value   string   `xml:",chardata"`
}

type zoneMemberXML struct {
	IP       string `xml:"ipaddress,attr"`
	DeviceID string `xml:",chardata"`
}

type zoneXML struct {
	XMLName  xml.Name        `xml:"zone"`
	Master   string          `xml:"master,attr"`
	SenderIP string          `xml:"senderIPAddress,attr,omitempty"`
	Members  []zoneMemberXML `xml:"member"`
}

// toCore returns nil when no master is set.
func (x *zoneXML) toCore() *core.Zone {
	master := strings.TrimSpace(x.Master)
	if master == "" {
		return nil
	}
	z := &core.Zone{MasterID: master, Members: make([]core.ZoneMember, 0, len(x.Members))}
	for _, m := range x.Members {
		z.Members = append(z.Members, core.ZoneMember{
			IP:       strings.TrimSpace(m.IP),
			DeviceID: strings.TrimSpace(m.DeviceID),
		})
	}
	return z
}

func zoneToXML(masterID, senderIP string, members []core.ZoneMember) zoneXML {
	x := zoneXML{Master: masterID, SenderIP: senderIP}
	for _, m := range members {
		x.Members = append(x.Members, zoneMemberXML{IP: m.IP, DeviceID: m.DeviceID})
	}
	return x
}

type errorsXML struct {
	XMLName  xml.Name `xml:"errors"`
	DeviceID string   `xml:"deviceID,attr"`
	Errors   []struct {
		Value    string `xml:"value,attr"`
		Name     string `xml:"name,attr"`
		Severity string `xml:"severity,attr"`
		Message  string `xml:",chardata"`
	} `xml:"error"`
}

// updatesXML is the push channel envelope. Children are kept raw so the
// channel can emit one event per recognized element.
type updatesXML struct {
	XMLName  xml.Name
	DeviceID string   `xml:"deviceID,attr"`
	Children []struct {
		XMLName xml.Name
		Inner   []byte `xml:",innerxml"`
	} `xml:",any"`
}

func atoi(s string) int {
	i, _ := strconv.Atoi(strings.TrimSpace(s))
	return i
}

func unixTime(s string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
