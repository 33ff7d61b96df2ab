// Package config loads and validates device and application connection options
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
)

// Error is the error class of all configuration errors
var Error = errs.Class("config")

const (
	// Quickstart is the organization which accepts unauthenticated clients
	Quickstart = "quickstart"
	// AuthToken is the authentication method of devices
	AuthToken = "token"
	// AuthAPIKey is the authentication method of applications
	AuthAPIKey = "apikey"

	// SectionDevice is the config file section holding device options
	SectionDevice = "device"
	// SectionApplication is the config file section holding application options
	SectionApplication = "application"
)

// Options identifies a device or an application within an organization. A device has
// a Type and an ID, an application only an ID.
type Options struct {
	Org          string `mapstructure:"org" env:"IOTF_ORG" description:"organization"`
	Type         string `mapstructure:"type" env:"IOTF_TYPE" description:"device type, empty for applications"`
	ID           string `mapstructure:"id" env:"IOTF_ID" description:"device or application id"`
	AuthMethod   string `mapstructure:"auth-method" env:"IOTF_AUTH_METHOD" description:"token for devices, apikey for applications"`
	AuthKey      string `mapstructure:"auth-key" env:"IOTF_AUTH_KEY" description:"api key of applications"`
	AuthToken    string `mapstructure:"auth-token" env:"IOTF_AUTH_TOKEN" description:"authentication token"`
	CleanSession bool   `mapstructure:"clean-session" env:"IOTF_CLEAN_SESSION" description:"discard subscriptions on disconnect"`
}

// ParseConfigFile reads options from the given section of a yaml, json or toml file,
// usually SectionDevice or SectionApplication. A file without the section is read as
// a flat list of options.
func ParseConfigFile(path string, section string) (Options, error) {
	vip := viper.New()
	vip.SetConfigFile(path)
	if err := vip.ReadInConfig(); err != nil {
		return Options{}, Error.New("cannot read %s: %v", path, err)
	}

	options := Options{CleanSession: true}
	var err error
	if vip.IsSet(section + ".id") {
		err = vip.UnmarshalKey(section, &options)
	} else {
		err = vip.Unmarshal(&options)
	}
	if err != nil {
		return Options{}, Error.New("cannot decode %s: %v", path, err)
	}
	return options, nil
}

// FromEnv reads options from IOTF_* environment variables
func FromEnv() (Options, error) {
	var options Options
	if err := envdecode.Decode(&options); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return Options{}, Error.New("no IOTF_* variables set")
		}
		return Options{}, Error.Wrap(err)
	}
	return options, nil
}

// IsDevice returns true if the options describe a device
func (o Options) IsDevice() bool {
	return o.Type != "" && o.ID != ""
}

// IsQuickstart returns true for the unauthenticated quickstart organization
func (o Options) IsQuickstart() bool {
	return o.Org == Quickstart
}

// Validate checks that the options are complete. Errors belong to the Error class.
func (o Options) Validate() error {
	if o.Org == "" {
		return Error.New("missing org")
	}
	if o.ID == "" {
		return Error.New("missing id")
	}
	if strings.ContainsAny(o.ID+o.Type, "/+#") {
		return Error.New("type and id must not contain '/', '+' or '#'")
	}
	if o.IsQuickstart() {
		return nil
	}

	switch {
	case o.AuthMethod == "":
		return Error.New("missing auth-method")
	case o.IsDevice() && o.AuthMethod != AuthToken:
		return Error.New("unsupported auth-method %q for devices, use %q", o.AuthMethod, AuthToken)
	case !o.IsDevice() && o.AuthMethod != AuthAPIKey:
		return Error.New("unsupported auth-method %q for applications, use %q", o.AuthMethod, AuthAPIKey)
	case !o.IsDevice() && o.AuthKey == "":
		return Error.New("missing auth-key")
	case o.AuthToken == "":
		return Error.New("missing auth-token")
	}
	return nil
}

// String returns the options without secrets
func (o Options) String() string {
	if o.IsDevice() {
		return fmt.Sprintf("device %s:%s/%s", o.Org, o.Type, o.ID)
	}
	return fmt.Sprintf("application %s:%s", o.Org, o.ID)
}
