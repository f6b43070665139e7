// Package config handles loading and validating the solar gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (SOLARGW_*)
//   - Validation of required fields and ranges
//   - Default value handling
//
// The device address and history capacity are inputs here; the telemetry
// core never decides them. The device address can later be re-targeted at
// runtime, but the value loaded here is what the gateway boots with.
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.DeviceBaseURL())
package config
