package trafficlight

import "github.com/alecthomas/kong"

type CLI struct {
	Config  string           `help:"config file path or URL" short:"c" required:"true" default:"trafficlight.yaml" env:"TRAFFICLIGHT_CONFIG"`
	Debug   bool             `help:"debug mode" short:"d" default:"false"`
	Version kong.VersionFlag `help:"show version"`
}
