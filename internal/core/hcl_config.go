package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	BaseDirName    = ".config/codeviewer"
	ConfigFileName = "config.hcl"
	DatabaseName   = "codeviewer.db"

	// DefaultPort is the loopback port the helper listens on.
	DefaultPort = 25570
)

// Config is the global configuration instance
var Config *Configuration

// Configuration represents the complete bridge configuration
type Configuration struct {
	ConfigPath  string   // Directory containing config.hcl and the event database
	Verbose     int      // Verbosity level
	HostVersion string   // Version the helper must be compatible with (vMAJOR.MINOR.PATCH)
	Helper      HelperConfig
	Release     ReleaseConfig
	Decompiler  DecompilerConfig
	Classpath   []string // Jars and class directories backing the class index
}

// HelperConfig describes how the helper executable is installed, launched and reached
type HelperConfig struct {
	Executable     string   // File name inside InstallDir
	InstallDir     string   // Where releases are extracted and .meta lives
	Args           []string // Extra launch arguments; the decompilation dir is always appended
	Port           int
	ConnectRetries int
	ConnectDelay   time.Duration
	ConnectTimeout time.Duration
}

// ReleaseConfig points at the release index and download location
type ReleaseConfig struct {
	IndexURL            string
	DownloadURLTemplate string // {version} is replaced with the release tag
}

// DecompilerConfig configures the external decompiler
type DecompilerConfig struct {
	Command   []string // {class} and {output} placeholders are substituted
	OutputDir string
}

// HCL parsing structs

type hclConfig struct {
	Verbose     int            `hcl:"verbose,optional"`
	HostVersion string         `hcl:"host_version,optional"`
	Helper      *hclHelper     `hcl:"helper,block"`
	Release     *hclRelease    `hcl:"release,block"`
	Decompiler  *hclDecompiler `hcl:"decompiler,block"`
	Classpath   []string       `hcl:"classpath,optional"`
}

type hclHelper struct {
	Executable     string   `hcl:"executable,optional"`
	InstallDir     string   `hcl:"install_dir,optional"`
	Args           []string `hcl:"args,optional"`
	Port           int      `hcl:"port,optional"`
	ConnectRetries int      `hcl:"connect_retries,optional"`
	ConnectDelay   string   `hcl:"connect_delay,optional"`
	ConnectTimeout string   `hcl:"connect_timeout,optional"`
}

type hclRelease struct {
	IndexURL            string `hcl:"index_url,optional"`
	DownloadURLTemplate string `hcl:"download_url_template,optional"`
}

type hclDecompiler struct {
	Command   []string `hcl:"command,optional"`
	OutputDir string   `hcl:"output_dir,optional"`
}

// LoadConfig loads the HCL configuration file and returns a Configuration struct.
// Unset values fall back to GetDefaultConfig.
func LoadConfig(filename string) (*Configuration, error) {
	var hclCfg hclConfig

	err := hclsimple.DecodeFile(filename, nil, &hclCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg := GetDefaultConfig(filepath.Dir(filename))
	cfg.Verbose = hclCfg.Verbose
	if hclCfg.HostVersion != "" {
		if cfg.HostVersion, err = ParseHostVersion(hclCfg.HostVersion); err != nil {
			return nil, err
		}
	}
	if len(hclCfg.Classpath) > 0 {
		cfg.Classpath = hclCfg.Classpath
	}

	if h := hclCfg.Helper; h != nil {
		if h.Executable != "" {
			cfg.Helper.Executable = h.Executable
		}
		if h.InstallDir != "" {
			cfg.Helper.InstallDir = h.InstallDir
		}
		if len(h.Args) > 0 {
			cfg.Helper.Args = h.Args
		}
		if h.Port != 0 {
			cfg.Helper.Port = h.Port
		}
		if h.ConnectRetries != 0 {
			cfg.Helper.ConnectRetries = h.ConnectRetries
		}
		if cfg.Helper.ConnectDelay, err = parseDuration(h.ConnectDelay, cfg.Helper.ConnectDelay); err != nil {
			return nil, fmt.Errorf("helper.connect_delay: %w", err)
		}
		if cfg.Helper.ConnectTimeout, err = parseDuration(h.ConnectTimeout, cfg.Helper.ConnectTimeout); err != nil {
			return nil, fmt.Errorf("helper.connect_timeout: %w", err)
		}
	}

	if r := hclCfg.Release; r != nil {
		if r.IndexURL != "" {
			cfg.Release.IndexURL = r.IndexURL
		}
		if r.DownloadURLTemplate != "" {
			cfg.Release.DownloadURLTemplate = r.DownloadURLTemplate
		}
	}

	if d := hclCfg.Decompiler; d != nil {
		if len(d.Command) > 0 {
			cfg.Decompiler.Command = d.Command
		}
		if d.OutputDir != "" {
			cfg.Decompiler.OutputDir = d.OutputDir
		}
	}

	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

// GetDefaultConfig returns a Configuration with default values rooted at configPath
func GetDefaultConfig(configPath string) *Configuration {
	return &Configuration{
		ConfigPath:  configPath,
		HostVersion: Version,
		Helper: HelperConfig{
			Executable:     "TotalDebugCompanion.exe",
			InstallDir:     filepath.Join(configPath, "companion-app"),
			Port:           DefaultPort,
			ConnectRetries: 5,
			ConnectDelay:   time.Second,
			ConnectTimeout: 500 * time.Millisecond,
		},
		Release: ReleaseConfig{
			IndexURL:            "https://api.github.com/repos/Minecraft-TA/TotalDebugCompanion/releases",
			DownloadURLTemplate: "https://github.com/Minecraft-TA/TotalDebugCompanion/releases/download/{version}/TotalDebugCompanion.zip",
		},
		Decompiler: DecompilerConfig{
			OutputDir: filepath.Join(configPath, "decompiled-files"),
		},
	}
}

// LoadConfigFromDir loads config.hcl from dir, or returns defaults when it does not exist
func LoadConfigFromDir(dir string) (*Configuration, error) {
	path := filepath.Join(dir, ConfigFileName)
	if !ConfigExists(path) {
		return GetDefaultConfig(dir), nil
	}
	return LoadConfig(path)
}

// ConfigExists checks if a config file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return err == nil
}

// DatabasePath returns the path of the event database
func (c *Configuration) DatabasePath() string {
	return filepath.Join(c.ConfigPath, DatabaseName)
}

// ExecutablePath returns the location of the helper executable. A relative
// executable lives inside InstallDir.
func (c *Configuration) ExecutablePath() string {
	if filepath.IsAbs(c.Helper.Executable) {
		return c.Helper.Executable
	}
	return filepath.Join(c.Helper.InstallDir, c.Helper.Executable)
}
