package cli

import (
	"crypto/tls"
	"time"

	"github.com/relayhttp/relay/relay"
	"github.com/relayhttp/relay/internal/config"
	"github.com/relayhttp/relay/internal/logging"
	"github.com/relayhttp/relay/message"
	"github.com/relayhttp/relay/relayerr"
	"github.com/relayhttp/relay/rurl"
	"github.com/relayhttp/relay/transport"
)

// buildClient assembles a relay.Client from cfg, the shared path every
// relayctl subcommand uses so flag/config wiring lives in one place.
func buildClient(cfg *config.Config, logger logging.Logger) (*relay.Client, error) {
	opts := []relay.Option{
		relay.WithTimeout(message.Timeout{
			Connect: cfg.Client.Timeout(),
			Read:    cfg.Client.Timeout(),
			Write:   cfg.Client.Timeout(),
			Pool:    cfg.Client.Timeout(),
		}),
		relay.WithPoolLimits(message.PoolLimits{
			SoftLimit:       cfg.Client.PoolSoftLimit,
			HardLimit:       cfg.Client.PoolHardLimit,
			PoolTimeout:     cfg.Client.Timeout(),
			KeepAliveExpiry: 5 * time.Second,
		}),
		relay.WithMaxRedirects(cfg.Client.MaxRedirects),
		relay.WithTrustEnv(cfg.Client.TrustEnv),
		relay.WithLogger(logger),
	}

	if cfg.Client.InsecureTLS {
		opts = append(opts, relay.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	if cfg.Client.BaseURL != "" {
		base, err := rurl.Parse(cfg.Client.BaseURL)
		if err != nil {
			return nil, relayerr.Newf(relayerr.CodeInvalidURL, "invalid base-url %q: %v", cfg.Client.BaseURL, err)
		}
		opts = append(opts, relay.WithBaseURL(base))
	}
	if cfg.Client.ProxyURL != "" {
		proxy, err := rurl.Parse(cfg.Client.ProxyURL)
		if err != nil {
			return nil, relayerr.Newf(relayerr.CodeInvalidURL, "invalid proxy %q: %v", cfg.Client.ProxyURL, err)
		}
		opts = append(opts, relay.WithProxy("all", transport.ProxyDefault, proxy))
	}

	return relay.New(opts...), nil
}
