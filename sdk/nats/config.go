package nats

import (
	"github.com/nats-io/nats.go"
	"os"
	"strings"
)

const (
	UrlEnvVar  = "NATS_URL"
	JwtEnvVar  = "NATS_JWT"
	SeedEnvVar = "NATS_SEED"
)

func FromEnv(name string, prefix string) nats.Option {
	if !strings.HasSuffix(prefix, "_") {
		prefix = prefix + "_"
	}

	return func(options *nats.Options) error {
		jwt := os.Getenv(prefix + JwtEnvVar)
		seed := os.Getenv(prefix + SeedEnvVar)
		if jwt != "" && seed != "" {
			if err := nats.UserJWTAndSeed(jwt, seed)(options); err != nil {
				return err
			}
		}

		options.Name = name

		return nil
	}
}

func GetUrl(prefix string) string {
	if !strings.HasSuffix(prefix, "_") {
		prefix = prefix + "_"
	}

	return os.Getenv(prefix + UrlEnvVar)
}

// Connect dials the cluster configured through the environment, falling back
// to the default local url.
func Connect(name string, prefix string) (*nats.Conn, error) {
	url := GetUrl(prefix)
	if url == "" {
		url = nats.DefaultURL
	}

	return nats.Connect(url, FromEnv(name, prefix))
}
