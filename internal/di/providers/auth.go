package providers

import (
	"github.com/samber/do/v2"

	"github.com/fuelupapp/fuelup-server/internal/auth"
	"github.com/fuelupapp/fuelup-server/internal/config"
)

// AuthKey wraps the authentication key bytes.
type AuthKey []byte

// ProvideAuthKey uses the configured key, or loads or generates one at the key path.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	key := cfg.Auth.AccessTokenKey
	if len(key) == 0 {
		var err error
		key, err = auth.LoadOrGenerateKey(cfg.Auth.KeyPath)
		if err != nil {
			return nil, err
		}
		cfg.Auth.AccessTokenKey = key
	}

	log.Info("Authentication key loaded",
		"key_path", cfg.Auth.KeyPath,
		"access_token_duration", cfg.Auth.AccessTokenDuration,
	)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService([]byte(authKey), cfg.Auth.AccessTokenDuration)
}
