package plan

import (
	"fmt"

	"github.com/joho/godotenv"
)

// ReadEnvFile loads extra environment variables from a dotenv-style file.
// The result is meant for Plan.WithExtraEnv, so the variables reach every
// attempt without mutating the launcher's own environment.
func ReadEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	return env, nil
}
