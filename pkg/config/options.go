package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/getmockd/imposterd/pkg/imposter"
	"github.com/getmockd/imposterd/pkg/logging"
	"github.com/getmockd/imposterd/pkg/tls"
)

// Options are the server settings. The koanf tags are the keys of the
// options file.
type Options struct {
	Host             string        `koanf:"host" json:"host"`
	Port             int           `koanf:"port" json:"port" validate:"min=1,max=65535"`
	AllowInjection   bool          `koanf:"allowInjection" json:"allowInjection"`
	NoMock           bool          `koanf:"noMock" json:"noMock"`
	AllowCORS        bool          `koanf:"allowCORS" json:"allowCORS"`
	TCPProxyWait     time.Duration `koanf:"tcpProxyWait" json:"tcpProxyWait" validate:"gte=0"`
	KeyFile          string        `koanf:"keyFile" json:"keyFile,omitempty" validate:"required_with=CertFile"`
	CertFile         string        `koanf:"certFile" json:"certFile,omitempty" validate:"required_with=KeyFile"`
	LogFile          string        `koanf:"logFile" json:"logFile"`
	LogLevel         string        `koanf:"logLevel" json:"logLevel" validate:"oneof=debug info warn warning error"`
	LogFormat        string        `koanf:"logFormat" json:"logFormat" validate:"oneof=text json"`
	ConfigFile       string        `koanf:"configFile" json:"configFile,omitempty"`
	AdminReadTimeout time.Duration `koanf:"adminReadTimeout" json:"adminReadTimeout" validate:"gt=0"`
}

// Default returns the built-in options.
func Default() Options {
	return Options{
		Port:             2525,
		TCPProxyWait:     100 * time.Millisecond,
		LogFile:          "mb.log",
		LogLevel:         "info",
		LogFormat:        "text",
		AdminReadTimeout: 30 * time.Second,
	}
}

// Flag names.
const (
	FlagHost             = "host"
	FlagPort             = "port"
	FlagAllowInjection   = "allowInjection"
	FlagNoMock           = "noMock"
	FlagAllowCORS        = "allowCORS"
	FlagTCPProxyWait     = "tcpProxyWait"
	FlagKeyFile          = "keyfile"
	FlagCertFile         = "certfile"
	FlagLogFile          = "logfile"
	FlagLogLevel         = "loglevel"
	FlagLogFormat        = "logformat"
	FlagConfigFile       = "configfile"
	FlagAdminReadTimeout = "adminReadTimeout"
	FlagOptionsFile      = "options"
)

// RegisterFlags declares the option flags on fs with the defaults as their
// default values.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagHost, d.Host, "hostname or address to bind the admin API to (default all interfaces)")
	fs.Int(FlagPort, d.Port, "admin API port")
	fs.Bool(FlagAllowInjection, d.AllowInjection, "allow inject predicates and responses")
	fs.Bool(FlagNoMock, d.NoMock, "do not record requests received by imposters")
	fs.Bool(FlagAllowCORS, d.AllowCORS, "answer cross-origin requests on the admin API")
	fs.Duration(FlagTCPProxyWait, d.TCPProxyWait, "how long a tcp proxy waits for more upstream data")
	fs.String(FlagKeyFile, d.KeyFile, "PEM private key for https imposters without their own")
	fs.String(FlagCertFile, d.CertFile, "PEM certificate for https imposters without their own")
	fs.String(FlagLogFile, d.LogFile, "path of the log file")
	fs.String(FlagLogLevel, d.LogLevel, "log level (debug, info, warn, error)")
	fs.String(FlagLogFormat, d.LogFormat, "log file format (text, json)")
	fs.String(FlagConfigFile, d.ConfigFile, "imposter file (JSON or YAML) to load at startup")
	fs.Duration(FlagAdminReadTimeout, d.AdminReadTimeout, "admin API request read timeout")
	fs.String(FlagOptionsFile, "", "YAML file holding any of the options above")
}

// Load merges the defaults, the options file at path (skipped when empty)
// and the explicitly set flags in fs (skipped when nil), then validates the
// result.
func Load(path string, fs *pflag.FlagSet) (Options, error) {
	opts := Default()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Options{}, fmt.Errorf("error loading options: %w", err)
		}
		if err := k.Unmarshal("", &opts); err != nil {
			return Options{}, fmt.Errorf("error unmarshaling options: %w", err)
		}
	}

	if fs != nil {
		if err := opts.override(fs); err != nil {
			return Options{}, err
		}
	}

	opts.LogLevel = strings.ToLower(opts.LogLevel)
	opts.LogFormat = strings.ToLower(opts.LogFormat)
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// override copies every flag that was set on the command line.
func (o *Options) override(fs *pflag.FlagSet) error {
	var errs []error
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			v, err := fs.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, err := fs.GetBool(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	duration := func(name string, dst *time.Duration) {
		if fs.Changed(name) {
			v, err := fs.GetDuration(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	str(FlagHost, &o.Host)
	if fs.Changed(FlagPort) {
		v, err := fs.GetInt(FlagPort)
		errs = append(errs, err)
		o.Port = v
	}
	boolean(FlagAllowInjection, &o.AllowInjection)
	boolean(FlagNoMock, &o.NoMock)
	boolean(FlagAllowCORS, &o.AllowCORS)
	duration(FlagTCPProxyWait, &o.TCPProxyWait)
	str(FlagKeyFile, &o.KeyFile)
	str(FlagCertFile, &o.CertFile)
	str(FlagLogFile, &o.LogFile)
	str(FlagLogLevel, &o.LogLevel)
	str(FlagLogFormat, &o.LogFormat)
	str(FlagConfigFile, &o.ConfigFile)
	duration(FlagAdminReadTimeout, &o.AdminReadTimeout)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("error reading flags: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the options against their constraints.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return imposter.Configurationf("invalid options: %s", strings.Join(msgs, "; "))
		}
		return imposter.Configurationf("invalid options: %v", err)
	}
	return nil
}

// Policy derives the process-wide imposter policy. The key and certificate
// files are read here.
func (o Options) Policy() (imposter.Policy, error) {
	material, err := tls.LoadMaterial(o.CertFile, o.KeyFile)
	if err != nil {
		return imposter.Policy{}, err
	}
	return imposter.Policy{
		AllowInjection: o.AllowInjection,
		RecordRequests: !o.NoMock,
		ProxyWait:      o.TCPProxyWait,
		TLS:            material,
	}, nil
}

// Logging returns the logger configuration the options describe.
func (o Options) Logging() logging.FileConfig {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(o.LogLevel)
	cfg.Format = logging.ParseFormat(o.LogFormat)
	return logging.FileConfig{Config: cfg, Path: o.LogFile}
}

// JSONLogs reports whether the log file is written as JSON lines.
func (o Options) JSONLogs() bool {
	return logging.ParseFormat(o.LogFormat) == logging.FormatJSON
}
