/*
Package config loads kismet's process configuration using koanf v2,
layering three sources in increasing priority: compiled-in defaults,
an optional YAML file (located via KISMET_CONF or a well-known path),
and KISMET_*-prefixed environment variables.

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    logging.Fatal().Err(err).Msg("failed to load configuration")
	}

There is no hot-reload: the core reads configuration once at startup,
before the orchestrator begins constructing subsystems, and never
re-reads it for the lifetime of the process.
*/
package config
