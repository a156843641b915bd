// Package config defines the conductor configuration and loads it.
//
// Configuration comes from three layers, later layers overriding earlier:
//
//	built-in defaults   config.Default()
//	config file         YAML (.yaml, .yml) or TOML (.toml)
//	environment         CONDUCTOR_<SECTION>_<KEY>, e.g. CONDUCTOR_EVENTS_CAPACITY
//
// Typical use:
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// Durations are written as Go duration strings ("250ms", "30s").
package config
