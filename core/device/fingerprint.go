package device

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Attributes are the raw device characteristics collected from the browser and the request.
type Attributes struct {
	UserAgent     string  `json:"user_agent"`
	Platform      string  `json:"platform"`
	WebGLRenderer string  `json:"webgl_renderer"`
	WebGLVendor   string  `json:"webgl_vendor"`
	ScreenWidth   int     `json:"screen_width"`
	ScreenHeight  int     `json:"screen_height"`
	ColorDepth    int     `json:"color_depth"`
	PixelRatio    float64 `json:"pixel_ratio"`
	Language      string  `json:"language"`
	Timezone      string  `json:"timezone"`
	IPAddress     string  `json:"ip_address"`
}

// Fingerprints are the three digests identifying a device, from the most to the least specific
// to a browser install.
type Fingerprints struct {
	Primary   string
	Secondary string
	Hardware  string
	Raw       Attributes
}

func (a Attributes) primaryFields() map[string]interface{} {
	return map[string]interface{}{
		"user_agent":     a.UserAgent,
		"platform":       a.Platform,
		"webgl_renderer": a.WebGLRenderer,
	}
}

func (a Attributes) secondaryFields() map[string]interface{} {
	m := a.primaryFields()
	m["screen_width"] = a.ScreenWidth
	m["screen_height"] = a.ScreenHeight
	m["color_depth"] = a.ColorDepth
	m["pixel_ratio"] = a.PixelRatio
	m["language"] = a.Language
	m["timezone"] = a.Timezone
	m["ip_address"] = a.IPAddress
	return m
}

func (a Attributes) hardwareFields() map[string]interface{} {
	return map[string]interface{}{
		"platform":       a.Platform,
		"webgl_renderer": a.WebGLRenderer,
		"webgl_vendor":   a.WebGLVendor,
		"screen_width":   a.ScreenWidth,
		"screen_height":  a.ScreenHeight,
		"color_depth":    a.ColorDepth,
		"pixel_ratio":    a.PixelRatio,
	}
}

// Derive computes the fingerprints of `attrs`. Each digest is the hex SHA-256 of the canonical
// JSON encoding (sorted keys) of its field set.
func Derive(attrs Attributes) Fingerprints {
	attrs.UserAgent = strings.TrimSpace(attrs.UserAgent)
	attrs.IPAddress = strings.TrimSpace(attrs.IPAddress)
	return Fingerprints{
		Primary:   digest(attrs.primaryFields()),
		Secondary: digest(attrs.secondaryFields()),
		Hardware:  digest(attrs.hardwareFields()),
		Raw:       attrs,
	}
}

func digest(fields map[string]interface{}) string {
	// encoding/json sorts map keys, and none of the values can fail to encode
	b, _ := json.Marshal(fields)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
