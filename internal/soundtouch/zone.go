package soundtouch

import (
	"bytes"
	"context"
	"encoding/xml"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
)

// Zone retrieves the device's zone. It returns nil when the device is not in a zone.
func (c *Client) Zone(ctx context.Context) (*core.Zone, error) {
	body, err := c.http.get(ctx, "/getZone")
	if err != nil {
		return nil, err
	}
	return parseZone(body)
}

// SetZone makes masterID the master of a zone with the given members.
// The member list should include the master itself.
func (c *Client) SetZone(ctx context.Context, masterID, senderIP string, members []core.ZoneMember) error {
	return c.http.post(ctx, "/setZone", zoneToXML(masterID, senderIP, members))
}

// AddZoneMember adds a speaker to the zone led by masterID.
func (c *Client) AddZoneMember(ctx context.Context, masterID string, member core.ZoneMember) error {
	return c.http.post(ctx, "/addZoneSlave", zoneToXML(masterID, "", []core.ZoneMember{member}))
}

// RemoveZoneMember removes a speaker from the zone led by masterID.
func (c *Client) RemoveZoneMember(ctx context.Context, masterID string, member core.ZoneMember) error {
	return c.http.post(ctx, "/removeZoneSlave", zoneToXML(masterID, "", []core.ZoneMember{member}))
}

// parseZone decodes a /getZone document. An empty body or missing master is no zone.
func parseZone(body []byte) (*core.Zone, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var x zoneXML
	if err := xml.Unmarshal(body, &x); err != nil {
		return nil, &sterrors.DecodeError{What: "/getZone", Err: err}
	}
	return x.toCore(), nil
}
