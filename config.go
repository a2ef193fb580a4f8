package trafficlight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/goccy/go-yaml"
)

const (
	DefaultMinInterval = 4 * time.Second
	DefaultMaxInterval = 6 * time.Second
	DefaultStep        = 100 * time.Millisecond
	DefaultHookTimeout = 5 * time.Second
	DefaultListenAddr  = ":8080"
)

type Config struct {
	Light     *LightConfig     `yaml:"light"`
	Responder *ResponderConfig `yaml:"responder"`
	Hooks     []*HookConfig    `yaml:"hooks"`
}

type LightConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
	Step        time.Duration `yaml:"step"`
}

func DefaultLightConfig() *LightConfig {
	return &LightConfig{
		MinInterval: DefaultMinInterval,
		MaxInterval: DefaultMaxInterval,
		Step:        DefaultStep,
	}
}

func (c *LightConfig) fillDefaults() {
	if c.MinInterval == 0 && c.MaxInterval == 0 {
		c.MinInterval, c.MaxInterval = DefaultMinInterval, DefaultMaxInterval
	}
	if c.Step == 0 {
		c.Step = DefaultStep
	}
}

func (c *LightConfig) Validate() error {
	if c.Step <= 0 {
		return fmt.Errorf("step must be positive: %s", c.Step)
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("min_interval must be positive: %s", c.MinInterval)
	}
	if c.MinInterval > c.MaxInterval {
		return fmt.Errorf("min_interval %s is greater than max_interval %s", c.MinInterval, c.MaxInterval)
	}
	if (c.MaxInterval-c.MinInterval)%c.Step != 0 {
		return fmt.Errorf("max_interval - min_interval (%s) must be a multiple of step %s", c.MaxInterval-c.MinInterval, c.Step)
	}
	return nil
}

type ResponderConfig struct {
	Addr      string  `yaml:"addr"`
	WaitRate  float64 `yaml:"wait_rate"`
	WaitBurst int     `yaml:"wait_burst"`
}

type HookConfig struct {
	Name    string        `yaml:"name"`
	Phase   string        `yaml:"phase"`
	Timeout time.Duration `yaml:"timeout"`

	Command *CommandHookConfig `yaml:"command"`
	TCP     *TCPHookConfig     `yaml:"tcp"`
	HTTP    *HTTPHookConfig    `yaml:"http"`
}

func (c *HookConfig) Validate() error {
	if c.Phase != "" {
		if _, err := ParsePhase(c.Phase); err != nil {
			return fmt.Errorf("hook %s: %w", c.Name, err)
		}
	}
	kinds := 0
	for _, set := range []bool{c.Command != nil, c.TCP != nil, c.HTTP != nil} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return fmt.Errorf("hook %s: exactly one of command, tcp or http is required", c.Name)
	}
	return nil
}

func LoadConfig(ctx context.Context, src string) (*Config, error) {
	b, err := loadURL(ctx, src)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML config, filling defaults and validating it.
func ParseConfig(b []byte) (*Config, error) {
	config := &Config{
		Light: DefaultLightConfig(),
		Responder: &ResponderConfig{
			Addr: DefaultListenAddr,
		},
	}
	if err := yaml.Unmarshal(b, config); err != nil {
		return nil, err
	}
	if config.Light == nil {
		config.Light = DefaultLightConfig()
	}
	config.Light.fillDefaults()
	if config.Responder == nil {
		config.Responder = &ResponderConfig{}
	}
	if config.Responder.Addr == "" {
		config.Responder.Addr = DefaultListenAddr
	}
	if err := config.Light.Validate(); err != nil {
		return nil, fmt.Errorf("invalid light config: %w", err)
	}
	var errs error
	for _, h := range config.Hooks {
		if h.Timeout == 0 {
			h.Timeout = DefaultHookTimeout
		}
		errs = errors.Join(errs, h.Validate())
	}
	if errs != nil {
		return nil, errs
	}
	return config, nil
}

func loadURL(ctx context.Context, s string) ([]byte, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid url %s: %w", s, err)
	}
	switch u.Scheme {
	case "http", "https":
		return loadHTTP(ctx, u)
	case "file", "": // empty scheme is treated as file
		return os.ReadFile(u.Path)
	case "s3":
		return loadS3(ctx, u)
	default:
		return nil, fmt.Errorf("invalid url %s: scheme must be http, https, file, or s3", s)
	}
}

func loadHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("http get failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http get failed: %s %s", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func loadS3(ctx context.Context, u *url.URL) ([]byte, error) {
	awscfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	svc := s3.NewFromConfig(awscfg)
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	out, err := svc.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object s3://%s/%s failed: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
