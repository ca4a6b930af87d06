package dashboard

import (
	"bytes"
	"encoding/json"
)

const (
	WidgetWeather = "weather"
	WidgetCrypto  = "crypto"
	WidgetClock   = "clock"
)

type WeatherSettings struct {
	City  string `json:"city"`
	Units string `json:"units"`
}

type CryptoSettings struct {
	Coins    []string `json:"coins"`
	Currency string   `json:"currency"`
}

type ClockSettings struct {
	Timezone  string `json:"timezone"`
	Format24h bool   `json:"format24h"`
}

// Settings is the per-instance settings value. Exactly one of the typed
// variants is set for widget types with a known shape; everything else is
// carried as the raw JSON object the widget stored. The wire form is always
// the bare variant object, the discriminant comes from the instance type.
type Settings struct {
	Kind    string
	Weather *WeatherSettings
	Crypto  *CryptoSettings
	Clock   *ClockSettings
	Raw     json.RawMessage
}

func WeatherConfig(v WeatherSettings) Settings { return Settings{Kind: WidgetWeather, Weather: &v} }
func CryptoConfig(v CryptoSettings) Settings   { return Settings{Kind: WidgetCrypto, Crypto: &v} }
func ClockConfig(v ClockSettings) Settings     { return Settings{Kind: WidgetClock, Clock: &v} }

// RawConfig wraps an opaque settings value. Invalid JSON yields an empty
// object.
func RawConfig(kind string, raw json.RawMessage) Settings {
	return Settings{Kind: kind, Raw: compactJSON(raw)}
}

// defaultSettings returns the seeded settings for widget types that have a
// known default shape.
func defaultSettings(widgetType string) (Settings, bool) {
	switch widgetType {
	case WidgetWeather:
		return WeatherConfig(WeatherSettings{City: "London", Units: "metric"}), true
	case WidgetCrypto:
		return CryptoConfig(CryptoSettings{Coins: []string{"bitcoin", "ethereum"}, Currency: "usd"}), true
	case WidgetClock:
		return ClockConfig(ClockSettings{Timezone: "Local", Format24h: true}), true
	}
	return Settings{}, false
}

// DecodeSettings binds a stored settings object to the variant for widgetType.
// Objects that do not decode strictly into the typed variant stay raw so no
// stored field is lost.
func DecodeSettings(widgetType string, raw json.RawMessage) Settings {
	var target any
	switch widgetType {
	case WidgetWeather:
		target = &WeatherSettings{}
	case WidgetCrypto:
		target = &CryptoSettings{}
	case WidgetClock:
		target = &ClockSettings{}
	default:
		return RawConfig(widgetType, raw)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return RawConfig(widgetType, raw)
	}
	switch v := target.(type) {
	case *WeatherSettings:
		return WeatherConfig(*v)
	case *CryptoSettings:
		return CryptoConfig(*v)
	case *ClockSettings:
		return ClockConfig(*v)
	}
	return RawConfig(widgetType, raw)
}

func (s Settings) MarshalJSON() ([]byte, error) {
	switch {
	case s.Weather != nil:
		return json.Marshal(s.Weather)
	case s.Crypto != nil:
		return json.Marshal(s.Crypto)
	case s.Clock != nil:
		return json.Marshal(s.Clock)
	case len(s.Raw) > 0:
		return s.Raw, nil
	}
	return []byte("{}"), nil
}

// UnmarshalJSON keeps the object raw; callers bind it with DecodeSettings once
// the instance type is known.
func (s *Settings) UnmarshalJSON(data []byte) error {
	s.Raw = compactJSON(data)
	return nil
}

func (s Settings) Clone() Settings {
	out := Settings{Kind: s.Kind}
	if s.Weather != nil {
		v := *s.Weather
		out.Weather = &v
	}
	if s.Crypto != nil {
		v := *s.Crypto
		if s.Crypto.Coins != nil {
			v.Coins = append([]string{}, s.Crypto.Coins...)
		}
		out.Crypto = &v
	}
	if s.Clock != nil {
		v := *s.Clock
		out.Clock = &v
	}
	if s.Raw != nil {
		out.Raw = append(json.RawMessage(nil), s.Raw...)
	}
	return out
}

func compactJSON(raw []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil || buf.Len() == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(buf.Bytes())
}
