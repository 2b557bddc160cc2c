package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendSerial       = "serial"
	BackendModemManager = "modemmanager"
)

type Config struct {
	ConfigFile string `yaml:"-"`

	Backend     string `yaml:"backend"`
	Device      string `yaml:"device"`
	InitialBaud int    `yaml:"initial_baud"`
	Baud        int    `yaml:"baud"`
	APN         string `yaml:"apn"`
	PwrkeyChip  string `yaml:"pwrkey_chip"`
	PwrkeyLine  int    `yaml:"pwrkey_line"`
	GpsdServer  string `yaml:"gpsd_server"`

	MQTTHost     string `yaml:"mqtt_host"`
	MQTTPort     int    `yaml:"mqtt_port"`
	MQTTUsername string `yaml:"mqtt_username"`
	MQTTPassword string `yaml:"mqtt_password"`
	ClientID     string `yaml:"client_id"`

	LocationTopic string `yaml:"location_topic"`
	WeatherTopic  string `yaml:"weather_topic"`
	BatteryTopic  string `yaml:"battery_topic"`
	ErrorTopic    string `yaml:"error_topic"`
	CommandTopic  string `yaml:"command_topic"`

	MinPublishInterval time.Duration `yaml:"min_publish_interval"`
	PublishInterval    time.Duration `yaml:"publish_interval"`
	LoopInterval       time.Duration `yaml:"loop_interval"`
	ReceiveWindow      time.Duration `yaml:"receive_window"`
	PublishTimeout     time.Duration `yaml:"publish_timeout"`
	ATTimeout          time.Duration `yaml:"at_timeout"`
	URCQueueSize       int           `yaml:"urc_queue_size"`

	FixThreshold int     `yaml:"fix_threshold"`
	BatteryMinV  float64 `yaml:"battery_min_v"`
	BatteryMaxV  float64 `yaml:"battery_max_v"`
	WeatherDir   string  `yaml:"weather_dir"`
	PowerDir     string  `yaml:"power_dir"`

	RedisURL    string `yaml:"redis_url"`
	MetricsAddr string `yaml:"metrics_addr"`
	JournalPath string `yaml:"journal_path"`
	JournalMax  int    `yaml:"journal_max"`
	// JournalDump prints the newest reports and exits instead of running.
	JournalDump int `yaml:"-"`

	Debug bool `yaml:"debug"`

	fs *flag.FlagSet
}

// New registers the service flags on the process command line.
func New() *Config {
	return NewWithFlagSet(flag.CommandLine)
}

func NewWithFlagSet(fs *flag.FlagSet) *Config {
	cfg := &Config{fs: fs}

	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML config file, explicit flags take precedence")

	fs.StringVar(&cfg.Backend, "backend", BackendSerial, "Modem backend: serial or modemmanager")
	fs.StringVar(&cfg.Device, "device", "/dev/ttyS0", "Modem serial device")
	fs.IntVar(&cfg.InitialBaud, "initial-baud", 115200, "Modem baud rate at power-on")
	fs.IntVar(&cfg.Baud, "baud", 9600, "Working baud rate")
	fs.StringVar(&cfg.APN, "apn", "hologram", "Cellular APN")
	fs.StringVar(&cfg.PwrkeyChip, "pwrkey-chip", "", "GPIO chip for the modem PWRKEY, empty to skip the power pulse")
	fs.IntVar(&cfg.PwrkeyLine, "pwrkey-line", 18, "GPIO line offset for the modem PWRKEY")
	fs.StringVar(&cfg.GpsdServer, "gpsd-server", "localhost:2947", "GPSD server address")

	fs.StringVar(&cfg.MQTTHost, "mqtt-host", "", "MQTT broker host")
	fs.IntVar(&cfg.MQTTPort, "mqtt-port", 1883, "MQTT broker port")
	fs.StringVar(&cfg.MQTTUsername, "mqtt-username", "", "MQTT username")
	fs.StringVar(&cfg.MQTTPassword, "mqtt-password", "", "MQTT password")
	fs.StringVar(&cfg.ClientID, "client-id", "tracker", "MQTT client id")

	fs.StringVar(&cfg.LocationTopic, "location-topic", "location", "Topic for GPS fixes")
	fs.StringVar(&cfg.WeatherTopic, "weather-topic", "weather", "Topic for weather samples")
	fs.StringVar(&cfg.BatteryTopic, "battery-topic", "battery", "Topic for power samples")
	fs.StringVar(&cfg.ErrorTopic, "error-topic", "error", "Topic for GPS status messages")
	fs.StringVar(&cfg.CommandTopic, "command-topic", "command", "Topic for inbound commands")

	fs.DurationVar(&cfg.MinPublishInterval, "min-publish-interval", time.Second, "Delay before publishing after a connect or poll command")
	fs.DurationVar(&cfg.PublishInterval, "publish-interval", 5*time.Minute, "Steady publish interval")
	fs.DurationVar(&cfg.LoopInterval, "loop-interval", 100*time.Millisecond, "Main loop sleep between iterations")
	fs.DurationVar(&cfg.ReceiveWindow, "receive-window", 200*time.Millisecond, "How long to listen for commands per iteration")
	fs.DurationVar(&cfg.PublishTimeout, "publish-timeout", 10*time.Second, "Timeout for a single publish")
	fs.DurationVar(&cfg.ATTimeout, "at-timeout", 2*time.Second, "Timeout for a single AT command")
	fs.IntVar(&cfg.URCQueueSize, "urc-queue-size", 16, "Unsolicited modem lines buffered between reads")

	fs.IntVar(&cfg.FixThreshold, "fix-threshold", 2, "Minimum GPS fix quality for publishing a location (2=2D, 3=3D)")
	fs.Float64Var(&cfg.BatteryMinV, "battery-min-v", 3.0, "Battery voltage reported as 0%")
	fs.Float64Var(&cfg.BatteryMaxV, "battery-max-v", 4.2, "Battery voltage reported as 100%")
	fs.StringVar(&cfg.WeatherDir, "weather-dir", "", "hwmon/iio directory of the BME280, empty if not fitted")
	fs.StringVar(&cfg.PowerDir, "power-dir", "", "hwmon directory of the INA219, empty if not fitted")

	fs.StringVar(&cfg.RedisURL, "redis-url", "", "Redis URL for the local state mirror, empty to disable")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Listen address for /metrics, empty to disable")
	fs.StringVar(&cfg.JournalPath, "journal", "", "bbolt file for the cycle journal, empty to disable")
	fs.IntVar(&cfg.JournalMax, "journal-max", 500, "Number of cycle reports kept in the journal")
	fs.IntVar(&cfg.JournalDump, "journal-dump", 0, "Print the last N journaled cycles and exit")

	fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")

	return cfg
}

// Parse reads the command line, overlays the config file if one is given and
// validates the result.
func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[1:])
}

func (c *Config) ParseArgs(args []string) error {
	if err := c.fs.Parse(args); err != nil {
		return err
	}

	if c.ConfigFile != "" {
		explicit := make(map[string]string)
		c.fs.Visit(func(f *flag.Flag) {
			explicit[f.Name] = f.Value.String()
		})

		raw, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to read config file: %v", err)
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return fmt.Errorf("failed to parse config file %s: %v", c.ConfigFile, err)
		}

		for name, value := range explicit {
			if err := c.fs.Set(name, value); err != nil {
				return fmt.Errorf("failed to re-apply -%s: %v", name, err)
			}
		}
	}

	return c.Validate()
}

func (c *Config) Validate() error {
	if c.JournalDump > 0 {
		if c.JournalPath == "" {
			return fmt.Errorf("-journal-dump needs -journal")
		}
		return nil
	}

	switch c.Backend {
	case BackendSerial:
		if c.Device == "" {
			return fmt.Errorf("serial backend needs -device")
		}
		if c.Baud <= 0 || c.InitialBaud <= 0 {
			return fmt.Errorf("baud rates must be positive")
		}
	case BackendModemManager:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.URCQueueSize <= 0 {
		return fmt.Errorf("urc-queue-size must be positive")
	}

	if c.MQTTHost == "" {
		return fmt.Errorf("-mqtt-host is required")
	}

	if c.MinPublishInterval <= 0 || c.PublishInterval <= 0 {
		return fmt.Errorf("publish intervals must be positive")
	}
	if c.MinPublishInterval > c.PublishInterval {
		return fmt.Errorf("min-publish-interval %v exceeds publish-interval %v", c.MinPublishInterval, c.PublishInterval)
	}
	if c.PublishInterval >= 1<<31*time.Millisecond {
		return fmt.Errorf("publish-interval %v is too long for the wrapping clock", c.PublishInterval)
	}
	if c.FixThreshold < 0 || c.FixThreshold > 3 {
		return fmt.Errorf("fix-threshold must be between 0 and 3, got %d", c.FixThreshold)
	}
	if c.BatteryMaxV <= c.BatteryMinV {
		return fmt.Errorf("battery-max-v must be greater than battery-min-v")
	}
	if c.LocationTopic == "" || c.WeatherTopic == "" || c.BatteryTopic == "" || c.ErrorTopic == "" || c.CommandTopic == "" {
		return fmt.Errorf("topics must not be empty")
	}
	return nil
}
