package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Env holds the environment-provided configuration. The API key and package
// name are required; everything else has defaults.
type Env struct {
	// PackageName identifies this relay against the cloud service.
	PackageName string

	// APIKey authenticates the relay against the cloud service.
	APIKey string

	// Port is the HTTP listen port. Default 80.
	Port int

	// Production selects the production authentication policy: missing or
	// invalid viewer tokens are rejected instead of falling back to a dev
	// user.
	Production bool
}

// LoadEnv reads the process environment, optionally seeded from a .env file
// in the working directory. Missing required variables are reported as one
// joined error so operators see every problem at once.
func LoadEnv() (Env, error) {
	// Best-effort: running without a .env file is the normal container case.
	_ = godotenv.Load()

	env := Env{
		PackageName: os.Getenv("PACKAGE_NAME"),
		APIKey:      os.Getenv("AUGMENTOS_API_KEY"),
		Port:        80,
		Production:  os.Getenv("NODE_ENV") == "production",
	}

	var errs []error
	if env.PackageName == "" {
		errs = append(errs, errors.New("PACKAGE_NAME is required"))
	}
	if env.APIKey == "" {
		errs = append(errs, errors.New("AUGMENTOS_API_KEY is required"))
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("PORT %q is not a valid port number", raw))
		} else {
			env.Port = port
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Env{}, fmt.Errorf("config: %w", err)
	}
	return env, nil
}
