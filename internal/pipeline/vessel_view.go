package pipeline

// VesselView is the flattened vessel snapshot published to downstream feeds.
type VesselView struct {
	MMSI        uint32   `json:"mmsi"`
	Class       string   `json:"class"`
	Name        string   `json:"name"`
	Flag        string   `json:"flag"`
	ShipType    string   `json:"ship_type"`
	Status      string   `json:"status,omitempty"`
	Destination string   `json:"destination,omitempty"`
	Datetime    string   `json:"dt"`
	Lat         float64  `json:"lat"`
	Lon         float64  `json:"lon"`
	CenterLat   float64  `json:"center_lat"`
	CenterLon   float64  `json:"center_lon"`
	Spd         float64  `json:"spd"`
	Crs         float64  `json:"crs"`
	Heading     *float64 `json:"heading,omitempty"`
	Length      int      `json:"length"`
	Width       int      `json:"width"`

	MsgType int `json:"msg_type"` // 1=live, 0=stale
	Fix     int `json:"fix"`      // 1 when the coordinates are usable
}
