package env

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// ApplicationEnvKey is the environment variable selecting the deployment environment,
// and with it the logger encoding and the YAML config file name.
const ApplicationEnvKey = "ENVIRONMENT"

// Environment represents the application deployment environment
type Environment string

const (
	EnvironmentLocal       Environment = "local"
	EnvironmentLocalDocker Environment = "local-docker"
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

var supportedEnvironments = []Environment{
	EnvironmentLocal,
	EnvironmentLocalDocker,
	EnvironmentDevelopment,
	EnvironmentStaging,
	EnvironmentProduction,
}

func (e Environment) String() string { return string(e) }

func IsEnvironmentValid(environment string) error {
	if slices.Contains(supportedEnvironments, Environment(environment)) {
		return nil
	}

	names := make([]string, 0, len(supportedEnvironments))
	for _, e := range supportedEnvironments {
		names = append(names, e.String())
	}

	return fmt.Errorf("invalid environment: %s must be set to one of %s", ApplicationEnvKey, strings.Join(names, ", "))
}

// GetApplicationEnv returns the environment if found in env vars and is valid
func GetApplicationEnv() (Environment, error) {
	current := os.Getenv(ApplicationEnvKey)
	if err := IsEnvironmentValid(current); err != nil {
		return "", err
	}
	return Environment(current), nil
}

// GetApplicationEnvSafe returns the environment if found, else defaults to EnvironmentLocal
func GetApplicationEnvSafe() Environment {
	current, err := GetApplicationEnv()
	if err != nil {
		return EnvironmentLocal
	}
	return current
}

func IsLocalApplicationEnv() bool {
	current := GetApplicationEnvSafe()
	return current == EnvironmentLocal || current == EnvironmentLocalDocker
}
