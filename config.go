package main

import (
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Credentials are optional: when either is empty the login flow goes
	// straight to the interactive path. POPBOT_USERNAME / POPBOT_PASSWORD
	// (or a .env file) override the yaml values.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	TargetProduct string `yaml:"target_product"`

	BaseURL  string `yaml:"base_url"`
	LoginURL string `yaml:"login_url"`

	DataDir     string `yaml:"data_dir"`
	CookieFile  string `yaml:"cookie_file"`
	StorageFile string `yaml:"storage_file"`

	Headless        bool `yaml:"headless"`
	KeepBrowserOpen bool `yaml:"keep_browser_open"`
	TimeoutSeconds  int  `yaml:"timeout_seconds"`

	LoginTimeoutSeconds       int `yaml:"login_timeout_seconds"`
	InteractiveTimeoutSeconds int `yaml:"interactive_timeout_seconds"`

	PaymentURLMinLength int `yaml:"payment_url_min_length"`

	BrowserProfilePath string `yaml:"browser_profile_path"`

	LogFile string `yaml:"log_file"`
	Debug   bool   `yaml:"debug"`

	Regions           []string `yaml:"regions"`
	OutOfStockPhrases []string `yaml:"out_of_stock_phrases"`

	Selectors SelectorConfig `yaml:"selectors"`
}

type SelectorConfig struct {
	Agreement     string `yaml:"agreement"`
	LoginField    string `yaml:"login_field"`
	PasswordField string `yaml:"password_field"`
	LoginButton   string `yaml:"login_button"`
	BuyNow        string `yaml:"buy_now"`
	GoToCart      string `yaml:"go_to_cart"`
	Checkbox      string `yaml:"checkbox"`
	Checkout      string `yaml:"checkout"`
	Pay           string `yaml:"pay"`
	Ordering      string `yaml:"ordering"`
}

func DefaultConfig() *Config {
	return &Config{
		TargetProduct: "",
		BaseURL:       defaultBaseURL,
		LoginURL:      defaultLoginURL,

		DataDir:     "_data",
		CookieFile:  "www.popmart.com.cookies.json",
		StorageFile: "www.popmart.com.storage.json",

		Headless:        false,
		KeepBrowserOpen: true,
		TimeoutSeconds:  10,

		LoginTimeoutSeconds:       60,
		InteractiveTimeoutSeconds: 300,

		PaymentURLMinLength: 50,

		LogFile: filepath.Join("logs", "popbot.log"),

		Regions:           defaultRegions,
		OutOfStockPhrases: defaultOutOfStockPhrases,

		Selectors: SelectorConfig{
			Agreement:     defaultAgreementSelector,
			LoginField:    defaultLoginField,
			PasswordField: defaultPasswordField,
			LoginButton:   defaultLoginButton,
			BuyNow:        defaultBuyNowSelector,
			GoToCart:      defaultGoToCartSelector,
			Checkbox:      defaultCheckboxSelector,
			Checkout:      defaultCheckoutSelector,
			Pay:           defaultPaySelector,
			Ordering:      defaultOrderingSelector,
		},
	}
}

// LoadConfig reads the yaml config at path, writing a starter config there
// first when none exists.
func LoadConfig(path string) (*Config, error) {
	// Credentials may live outside the config file.
	_ = godotenv.Load()

	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		config.applyEnv()
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	config.applyEnv()

	if config.DataDir != "" {
		if err := os.MkdirAll(config.DataDir, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("POPBOT_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("POPBOT_PASSWORD"); v != "" {
		c.Password = v
	}
}

func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate fails fast on configuration the automation cannot run with.
// Missing credentials are not an error: they route login to the
// interactive path.
func (c *Config) Validate() error {
	if c.TargetProduct == "" {
		return &ConfigError{Field: "target_product", Reason: "required"}
	}
	u, err := url.Parse(c.TargetProduct)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Field: "target_product", Reason: "must be an absolute http(s) URL"}
	}
	if c.TimeoutSeconds <= 0 {
		return &ConfigError{Field: "timeout_seconds", Reason: "must be positive"}
	}
	return nil
}

func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// Timeout is the ambient per-action timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) CookiePath() string {
	return filepath.Join(c.DataDir, c.CookieFile)
}

func (c *Config) StoragePath() string {
	return filepath.Join(c.DataDir, c.StorageFile)
}
