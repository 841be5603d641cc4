package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"udpwatch/internal/model"
)

// ErrChannelNotFound is returned by FindChannel for an undefined channel.
var ErrChannelNotFound = errors.New("channel not defined")

const generalSection = "General"

// Channel is one transcoder channel definition. Only the multicast output
// is used by the watchdog; the rest is carried for listings.
type Channel struct {
	Name         string `yaml:"-"`
	Path         string `yaml:"-"`
	McastIP      string `yaml:"mcast_out_ip"`
	McastPort    int    `yaml:"mcast_out_port"`
	InputStream  string `yaml:"input_stream"`
	VideoBitrate string `yaml:"video_bitrate"`
	AudioBitrate string `yaml:"audio_bitrate"`
	Codec        string `yaml:"codec"`
	VideoMapping string `yaml:"video_mapping"`
	AudioMapping string `yaml:"audio_mapping"`
	Muxrate      string `yaml:"muxrate"`
	LogLevel     string `yaml:"loglevel"`
}

// Endpoint validates the channel's multicast output.
func (c Channel) Endpoint() (model.Endpoint, error) {
	ep, err := model.NewEndpoint(c.McastIP, c.McastPort)
	if err != nil {
		return model.Endpoint{}, fmt.Errorf("channel %s: %w", c.Name, err)
	}
	return ep, nil
}

// LoadChannels reads every *.ini, *.yaml and *.yml file in dir. The channel
// name is the file name without extension. Results are sorted by name.
func LoadChannels(dir string) ([]Channel, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	seen := map[string]string{}
	var channels []Channel
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		var ch Channel
		switch ext {
		case ".ini":
			ch, err = loadINIChannel(path)
		case ".yaml", ".yml":
			ch, err = loadYAMLChannel(path)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ch.Name = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		ch.Path = path
		if prev, ok := seen[ch.Name]; ok {
			return nil, fmt.Errorf("channel %s defined twice (%s, %s)", ch.Name, prev, path)
		}
		seen[ch.Name] = path
		channels = append(channels, ch)
	}

	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })
	return channels, nil
}

// FindChannel loads dir and returns the named channel.
func FindChannel(dir, name string) (Channel, error) {
	channels, err := LoadChannels(dir)
	if err != nil {
		return Channel{}, err
	}
	for _, ch := range channels {
		if ch.Name == name {
			return ch, nil
		}
	}
	return Channel{}, fmt.Errorf("%s in %s: %w", name, dir, ErrChannelNotFound)
}

func loadINIChannel(path string) (Channel, error) {
	file, err := ini.Load(path)
	if err != nil {
		return Channel{}, err
	}
	sec, err := file.GetSection(generalSection)
	if err != nil {
		return Channel{}, fmt.Errorf("missing [%s] section", generalSection)
	}
	if !sec.HasKey("MCAST_OUT_IP") || !sec.HasKey("MCAST_OUT_PORT") {
		return Channel{}, errors.New("MCAST_OUT_IP and MCAST_OUT_PORT are required")
	}
	port, err := strconv.Atoi(strings.TrimSpace(sec.Key("MCAST_OUT_PORT").String()))
	if err != nil {
		return Channel{}, fmt.Errorf("MCAST_OUT_PORT: %w", err)
	}

	return Channel{
		McastIP:      strings.TrimSpace(sec.Key("MCAST_OUT_IP").String()),
		McastPort:    port,
		InputStream:  sec.Key("INPUT_STREAM").String(),
		VideoBitrate: sec.Key("VIDEO_BITRATE").String(),
		AudioBitrate: sec.Key("AUDIO_BITRATE").String(),
		Codec:        sec.Key("CODEC").String(),
		VideoMapping: sec.Key("VIDEO_MAPPING").String(),
		AudioMapping: sec.Key("AUDIO_MAPPING").String(),
		Muxrate:      sec.Key("MUXRATE").String(),
		LogLevel:     sec.Key("LOGLEVEL").String(),
	}, nil
}

func loadYAMLChannel(path string) (Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Channel{}, err
	}
	var ch Channel
	if err := yaml.Unmarshal(data, &ch); err != nil {
		return Channel{}, err
	}
	if ch.McastIP == "" || ch.McastPort == 0 {
		return Channel{}, errors.New("mcast_out_ip and mcast_out_port are required")
	}
	return ch, nil
}
