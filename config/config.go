package config

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/activecm/rcr/util"

	"github.com/go-playground/validator/v10"
	"github.com/hjson/hjson-go/v4"
	"github.com/spf13/afero"
)

// Version is set at compile time
var Version string

const DefaultConfigPath = "./config.hjson"

var ErrConfigNotLoaded = errors.New("config has not been loaded")

var errReadingConfigFile = errors.New("encountered an error while reading the config file")

type (
	Config struct {
		InputDirectory     string              `json:"input_directory" validate:"required"`
		UpdateCheckEnabled bool                `json:"update_check_enabled" validate:"boolean"`
		LogLevel           int                 `json:"log_level" validate:"gte=-1,lte=7"`
		LoggingEnabled     bool                `json:"logging_enabled" validate:"boolean"`
		Analysis           AnalysisParams      `json:"analysis_params" validate:"required"`
		Filter             Filter              `json:"filtering"`
		InputData          map[string]LabelMap `json:"input_data" validate:"required,min=1,dive,keys,required,endkeys,min=1"`

		// Pairs is derived from InputData when the config is parsed,
		// ordered by log file and then by destination IP
		Pairs []Pair `json:"-"`
	}

	// AnalysisParams holds the tunable parameters for payload size analysis
	AnalysisParams struct {
		ZScoreThreshold float64 `json:"z_threshold" validate:"gt=0"`
		MinClusterSize  int     `json:"min_cluster_size" validate:"gte=1"`
		ClusterWidth    float64 `json:"cluster_width" validate:"gt=0"`
		BucketSize      float64 `json:"bucket_size" validate:"gt=0"`
		MinBucketCount  int     `json:"min_bucket_count" validate:"gte=1"`
	}

	// LabelMap maps a destination IP to the label its results are reported under
	LabelMap map[string]string

	// Pair is one (log file, destination IP) combination to analyze
	Pair struct {
		LogFile string `json:"log_file"`
		IP      string `json:"ip"`
		Label   string `json:"label"`
	}
)

var (
	mutex        sync.Mutex
	loadedConfig *Config
)

// GetConfig returns the config stored by the last successful call to LoadConfig
func GetConfig() (*Config, error) {
	mutex.Lock()
	defer mutex.Unlock()

	if loadedConfig == nil {
		return nil, ErrConfigNotLoaded
	}

	return loadedConfig, nil
}

// LoadConfig reads the config file at the given path, validates it and
// stores it as the active config
func LoadConfig(afs afero.Fs, path string) (*Config, error) {
	cfg, err := ReadFileConfig(afs, path)
	if err != nil {
		return nil, err
	}

	mutex.Lock()
	loadedConfig = cfg
	mutex.Unlock()

	return cfg, nil
}

// ReadFileConfig attempts to read the config file at the given path and
// parse it into a config struct
func ReadFileConfig(afs afero.Fs, path string) (*Config, error) {
	contents, err := util.GetFileContents(afs, path)
	if err != nil {
		return nil, fmt.Errorf("%w, located by default at '%s', please correct the issue in the config and try again:\n\t- %w", errReadingConfigFile, path, err)
	}

	cfg := &Config{}
	if err := cfg.parseJSON(contents); err != nil {
		return nil, fmt.Errorf("%w, located by default at '%s', please correct the issue in the config and try again:\n\t- %w", errReadingConfigFile, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w, located by default at '%s', please correct the issue in the config and try again:\n\t- %w", errReadingConfigFile, path, err)
	}

	return cfg, nil
}

// parseJSON unmarshals the hjson document into the config
func (cfg *Config) parseJSON(data []byte) error {
	return hjson.Unmarshal(data, cfg)
}

// UnmarshalJSON lays the parsed document over the default config so that
// omitted keys keep their default values
func (c *Config) UnmarshalJSON(bytes []byte) error {
	// create temporary config struct to unmarshal into
	// not doing this would result in an infinite unmarshalling loop
	type tmpConfig Config

	defaultCfg, err := getDefaultConfig()
	if err != nil {
		return err
	}

	tmpCfg := tmpConfig(defaultCfg)

	// input_data must come from the document itself, otherwise unmarshalling
	// would merge the document's entries with the sample entries
	tmpCfg.InputData = nil
	tmpCfg.Pairs = nil

	// unmarshal json into the default config struct
	if err := hjson.Unmarshal(bytes, &tmpCfg); err != nil {
		return err
	}

	cfg := Config(tmpCfg)

	// parse the filter subnet strings into net.IPNet objects
	if err := cfg.Filter.parseSubnets(); err != nil {
		return err
	}

	cfg.parsePairs()

	*c = cfg
	return nil
}

// parsePairs flattens input_data into the ordered pair list
func (cfg *Config) parsePairs() {
	var pairs []Pair
	for logFile, hosts := range cfg.InputData {
		for ip, label := range hosts {
			pairs = append(pairs, Pair{LogFile: logFile, IP: ip, Label: label})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].LogFile != pairs[j].LogFile {
			return pairs[i].LogFile < pairs[j].LogFile
		}
		return pairs[i].IP < pairs[j].IP
	})

	cfg.Pairs = pairs
}

// Validate validates the config struct values
func (cfg *Config) Validate() error {
	validate, err := NewValidator()
	if err != nil {
		return err
	}

	if err := validate.Struct(cfg); err != nil {
		return err
	}

	return nil
}

// NewValidator creates a validator with custom validations registered for
// the input_data entries
func NewValidator() (*validator.Validate, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// destination keys must be valid IP addresses and labels must be
	// non-empty and unique across all log files
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		cfg := sl.Current().Interface().(Config)

		seenLabels := make(map[string]bool)
		for logFile, hosts := range cfg.InputData {
			for ip, label := range hosts {
				field := fmt.Sprintf("input_data[%s][%s]", logFile, ip)
				if net.ParseIP(ip) == nil {
					sl.ReportError(ip, field, "InputData", "ip_addr", "")
				}
				switch {
				case strings.TrimSpace(label) == "":
					sl.ReportError(label, field, "InputData", "label", "")
				case seenLabels[label]:
					sl.ReportError(label, field, "InputData", "unique_label", "")
				}
				seenLabels[label] = true
			}
		}
	}, Config{})

	return validate, nil
}

// ResetConfig resets the config values to default
func (cfg *Config) ResetConfig() error {
	newConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	*cfg = newConfig

	if err := cfg.Validate(); err != nil {
		return err
	}

	return nil
}

// GetDefaultConfig returns a config object with default values
func GetDefaultConfig() *Config {
	if Version == "" {
		Version = "dev"
	}

	cfg, err := getDefaultConfig()
	if err != nil {
		// the built-in defaults always parse
		panic(fmt.Sprintf("error creating default config: %v", err))
	}

	return &cfg
}

func getDefaultConfig() (Config, error) {
	cfg := defaultConfig()

	if err := cfg.Filter.parseSubnets(); err != nil {
		return Config{}, err
	}

	cfg.parsePairs()

	return cfg, nil
}

// defaultConfig returns the default config values, mirroring the shipped
// config.hjson
func defaultConfig() Config {
	return Config{
		InputDirectory:     "./input",
		UpdateCheckEnabled: true,
		LogLevel:           1,
		LoggingEnabled:     false,
		Analysis: AnalysisParams{
			ZScoreThreshold: 2.5,
			MinClusterSize:  10,
			ClusterWidth:    20,
			BucketSize:      10,
			MinBucketCount:  3,
		},
		Filter: Filter{
			InternalSubnetsJSON: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8"},
		},
		InputData: map[string]LabelMap{
			"conn.log": {
				"165.227.88.15": "baseline-web",
				"159.65.77.234": "suspect-beacon",
			},
		},
	}
}
