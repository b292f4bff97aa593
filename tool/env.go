package tool

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvAPIBase names the environment override for the collaborator's base address.
const EnvAPIBase = "PARTYLINE_API_BASE"

// LoadEnv reads a .env file if one exists. Variables already set in the
// environment win over the file.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		DefaultLogger.Debugf("No .env loaded: %v", err)
	}
}

// BaseFromEnv returns the base address override from the environment, if any.
func BaseFromEnv() string {
	return strings.TrimSpace(os.Getenv(EnvAPIBase))
}
