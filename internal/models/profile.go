package models

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// DeviceProfile describes the fingerprint a browser session presents.
type DeviceProfile struct {
	Name              string   `yaml:"name" json:"name"`
	UserAgent         string   `yaml:"user_agent" json:"user_agent"`
	Viewport          Viewport `yaml:"viewport" json:"viewport"`
	DeviceScaleFactor float64  `yaml:"device_scale_factor" json:"device_scale_factor"`
	IsMobile          bool     `yaml:"is_mobile" json:"is_mobile"`
	HasTouch          bool     `yaml:"has_touch" json:"has_touch"`
	Locale            string   `yaml:"locale" json:"locale"`
	TimezoneID        string   `yaml:"timezone_id" json:"timezone_id"`
}

// InheritedProfile marks sessions attached to an existing browser whose
// fingerprint was not chosen by us.
var InheritedProfile = DeviceProfile{Name: "inherited"}
